package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ApplySchema     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	CookieName      string
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	KeyPrefix       string
}

type SecurityConfig struct {
	// PasswordAlgorithm selects the hasher for new credentials: "argon2id" or "bcrypt".
	PasswordAlgorithm string
	BcryptCost        int
	Argon2Time        uint32
	Argon2Memory      uint32
	Argon2Threads     uint8
	RememberTTL       time.Duration
	CookieSecret      string
	HashesPerSecond   float64
	HashBurst         int
}

type RateLimitConfig struct {
	LoginMaxAttempts  int
	LoginWindow       time.Duration
	SignupMaxAttempts int
	SignupWindow      time.Duration
	FailOpen          bool
}

type SignupConfig struct {
	CodeLength        int
	CodeMaxAttempts   int
	MinPasswordLength int
}

type RedirectConfig struct {
	AfterLogin  string
	AfterLogout string
	AfterSignup string
}

type EventsConfig struct {
	Stream string
	MaxLen int64
}

type WorkerConfig struct {
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type JobsConfig struct {
	PurgeRememberTokens string
	TrimEvents          string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Session          SessionConfig
	Security         SecurityConfig
	RateLimit        RateLimitConfig
	Signup           SignupConfig
	Redirects        RedirectConfig
	Events           EventsConfig
	Worker           WorkerConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("MEALDELIVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would weaken the login guarantees.
func (c *AppConfig) Validate() error {
	if c.Environment == "production" && len(c.Security.CookieSecret) < 32 {
		return fmt.Errorf("security.cookiesecret must be at least 32 bytes in production")
	}
	if c.RateLimit.LoginMaxAttempts <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("ratelimit login attempts and window must be positive")
	}
	if c.Signup.CodeLength <= 0 || c.Signup.CodeMaxAttempts <= 0 {
		return fmt.Errorf("signup code length and max attempts must be positive")
	}
	switch c.Security.PasswordAlgorithm {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("unsupported security.passwordalgorithm %q", c.Security.PasswordAlgorithm)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.requesttimeout", "5s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.applyschema", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.cookiename", "meal_session")
	v.SetDefault("session.idletimeout", "30m")
	v.SetDefault("session.absolutetimeout", "12h")
	v.SetDefault("session.keyprefix", "sess:")

	v.SetDefault("security.passwordalgorithm", "argon2id")
	v.SetDefault("security.bcryptcost", 12)
	v.SetDefault("security.argon2time", 3)
	v.SetDefault("security.argon2memory", 64*1024)
	v.SetDefault("security.argon2threads", 2)
	v.SetDefault("security.rememberttl", "720h") // 30 days
	v.SetDefault("security.cookiesecret", "dev-cookie-secret-change-me")
	v.SetDefault("security.hashespersecond", 20)
	v.SetDefault("security.hashburst", 10)

	v.SetDefault("ratelimit.loginmaxattempts", 5)
	v.SetDefault("ratelimit.loginwindow", "300s")
	v.SetDefault("ratelimit.signupmaxattempts", 10)
	v.SetDefault("ratelimit.signupwindow", "1h")
	v.SetDefault("ratelimit.failopen", false)

	v.SetDefault("signup.codelength", 3)
	v.SetDefault("signup.codemaxattempts", 100)
	v.SetDefault("signup.minpasswordlength", 8)

	v.SetDefault("redirects.afterlogin", "/")
	v.SetDefault("redirects.afterlogout", "/login")
	v.SetDefault("redirects.aftersignup", "/")

	v.SetDefault("events.stream", "auth:events")
	v.SetDefault("events.maxlen", 100000)

	v.SetDefault("worker.group", "auth-audit")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")

	v.SetDefault("jobs.purgeremembertokens", "0 0 3 * * *")
	v.SetDefault("jobs.trimevents", "0 0 */1 * * *")
}

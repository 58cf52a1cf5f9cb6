package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hipper-gif/meal-delivery/internal/cache"
	"github.com/hipper-gif/meal-delivery/internal/config"
	"github.com/hipper-gif/meal-delivery/internal/database"
	"github.com/hipper-gif/meal-delivery/internal/events"
	"github.com/hipper-gif/meal-delivery/internal/handlers"
	"github.com/hipper-gif/meal-delivery/internal/jobs"
	"github.com/hipper-gif/meal-delivery/internal/log"
	"github.com/hipper-gif/meal-delivery/internal/metrics"
	"github.com/hipper-gif/meal-delivery/internal/ratelimit"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
	"github.com/hipper-gif/meal-delivery/internal/server"
	"github.com/hipper-gif/meal-delivery/internal/service"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	db := database.OpenDB(dbPool)

	if cfg.Postgres.ApplySchema {
		if err := database.ApplySchema(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	m := metrics.New()
	store := repository.NewStore(db)
	publisher := events.NewPublisher(redisClient, cfg.Events.Stream, cfg.Events.MaxLen)

	handlerSet, err := buildHandlers(cfg, logger, store, redisClient, publisher, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}

	engine, err := server.NewEngine(cfg, logger, m, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build router")
	}
	httpServer := server.NewHTTPServer(cfg, logger, engine)

	scheduler := jobs.NewScheduler(store.Accounts, publisher, jobs.Schedule{
		PurgeRememberTokens: cfg.Jobs.PurgeRememberTokens,
		TrimEvents:          cfg.Jobs.TrimEvents,
	}, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, db, dbPool, redisClient)
}

func buildHandlers(
	cfg *config.AppConfig,
	logger zerolog.Logger,
	store *repository.Store,
	redisClient redis.UniversalClient,
	publisher *events.Publisher,
	m *metrics.Metrics,
) (handlers.HandlerSet, error) {
	hasher, err := security.NewPasswordHasher(
		security.WithAlgorithm(cfg.Security.PasswordAlgorithm),
		security.WithBcryptCost(cfg.Security.BcryptCost),
		security.WithArgon2Params(security.Argon2Params{
			Time:    cfg.Security.Argon2Time,
			Memory:  cfg.Security.Argon2Memory,
			Threads: cfg.Security.Argon2Threads,
		}),
	)
	if err != nil {
		return handlers.HandlerSet{}, err
	}

	sessions := session.NewManager(redisClient, session.Config{
		KeyPrefix:       cfg.Session.KeyPrefix,
		IdleTimeout:     cfg.Session.IdleTimeout,
		AbsoluteTimeout: cfg.Session.AbsoluteTimeout,
	})
	limiter := ratelimit.New(redisClient, "rl:")
	hashBudget := rate.NewLimiter(rate.Limit(cfg.Security.HashesPerSecond), cfg.Security.HashBurst)

	auth := service.NewAuthService(service.AuthDeps{
		Accounts:   store.Accounts,
		Remember:   service.NewRememberTokenService(store.Accounts, cfg.Security.RememberTTL),
		Limiter:    limiter,
		Sessions:   sessions,
		Passwords:  hasher,
		Events:     publisher,
		HashBudget: hashBudget,
		Recorder:   m,
	}, service.AuthConfig{
		LoginMaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		LoginWindow:      cfg.RateLimit.LoginWindow,
		FailOpen:         cfg.RateLimit.FailOpen,
		CookieSecret:     cfg.Security.CookieSecret,
	}, logger.With().Str("component", "auth").Logger())

	signup := service.NewAccountProvisioner(service.ProvisionerDeps{
		Store:      store,
		Codes:      service.NewCodeGenerator(cfg.Signup.CodeLength, cfg.Signup.CodeMaxAttempts),
		Hasher:     hasher,
		Limiter:    limiter,
		Sessions:   sessions,
		Events:     publisher,
		HashBudget: hashBudget,
		Recorder:   m,
	}, service.SignupConfig{
		MinPasswordLength: cfg.Signup.MinPasswordLength,
		MaxAttempts:       cfg.RateLimit.SignupMaxAttempts,
		Window:            cfg.RateLimit.SignupWindow,
		FailOpen:          cfg.RateLimit.FailOpen,
	}, logger.With().Str("component", "signup").Logger())

	return handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:          auth,
		Signup:        signup,
		Sessions:      sessions,
		Organizations: store.Organizations,
		DB:            store.DB(),
		Cache:         redisClient,
		Metrics:       m,
	}), nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *sql.DB, pool *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("database close error")
	}
	pool.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}

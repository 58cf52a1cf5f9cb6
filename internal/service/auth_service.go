package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

var validate = validator.New()

type AccountStore interface {
	LookupCredentials(ctx context.Context, email string) (models.Credentials, error)
	LookupCredentialsByID(ctx context.Context, id string) (models.Credentials, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type AttemptLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type SessionStore interface {
	Establish(ctx context.Context, state *session.State, claims session.Claims) error
	Destroy(ctx context.Context, state *session.State) error
}

type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
	VerifyDummy(password string)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

// Recorder receives outcome counts; *metrics.Metrics satisfies it.
type Recorder interface {
	LoginOutcome(outcome string)
	SignupOutcome(outcome string)
	RateLimited(action string)
	CodeDraws(n int)
	EventPublishFailed()
}

type AuthConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
	FailOpen         bool
	CookieSecret     string
}

type AuthService struct {
	accounts   AccountStore
	remember   *RememberTokenService
	limiter    AttemptLimiter
	sessions   SessionStore
	passwords  PasswordVerifier
	events     EventPublisher
	hashBudget *rate.Limiter
	recorder   Recorder
	cfg        AuthConfig
	log        zerolog.Logger
	now        func() time.Time
}

type AuthDeps struct {
	Accounts   AccountStore
	Remember   *RememberTokenService
	Limiter    AttemptLimiter
	Sessions   SessionStore
	Passwords  PasswordVerifier
	Events     EventPublisher
	HashBudget *rate.Limiter
	Recorder   Recorder
}

func NewAuthService(deps AuthDeps, cfg AuthConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		accounts:   deps.Accounts,
		remember:   deps.Remember,
		limiter:    deps.Limiter,
		sessions:   deps.Sessions,
		passwords:  deps.Passwords,
		events:     deps.Events,
		hashBudget: deps.HashBudget,
		recorder:   deps.Recorder,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	ClientIP   string
	State      *session.State
}

// LoginResult describes the authenticated account. RememberToken and
// AccountCookie are empty unless a remember-me token was issued.
type LoginResult struct {
	Claims          session.Claims
	RememberToken   string
	AccountCookie   string
	RememberExpires time.Time
}

func LoginKey(clientIP string) string { return "login_" + clientIP }

func rememberKey(clientIP string) string { return "remember_" + clientIP }

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return LoginResult{}, validationError("Please enter your email address and password.")
	}
	if err := validate.Var(email, "email"); err != nil {
		return LoginResult{}, validationError("Please enter a valid email address.")
	}

	key := LoginKey(input.ClientIP)
	if err := s.checkLimit(ctx, "login", key, input.ClientIP); err != nil {
		return LoginResult{}, err
	}

	if err := s.waitHashBudget(ctx); err != nil {
		return LoginResult{}, err
	}

	creds, err := s.accounts.LookupCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.passwords.VerifyDummy(input.Password)
			s.loginFailed(ctx, "", input.ClientIP, "unknown email")
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, internalError(err)
	}

	ok, err := s.passwords.Verify(input.Password, creds.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", creds.AccountID).Msg("stored password hash unreadable")
	}
	if !ok {
		s.loginFailed(ctx, creds.AccountID, input.ClientIP, "wrong password")
		return LoginResult{}, invalidCredentials()
	}

	if err := checkStanding(creds); err != nil {
		s.loginFailed(ctx, creds.AccountID, input.ClientIP, err.Error())
		return LoginResult{}, err
	}

	result, err := s.establish(ctx, input.State, creds, input.RememberMe)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("reset login attempts failed")
	}

	s.recordLogin("success")
	s.publish(ctx, models.AuthEvent{
		Kind:           models.AuthEventLoginSucceeded,
		AccountID:      creds.AccountID,
		OrganizationID: creds.OrganizationID,
		ClientIP:       input.ClientIP,
	})
	return result, nil
}

type ReauthInput struct {
	Token         string
	AccountCookie string
	ClientIP      string
	State         *session.State
}

// Reauthenticate logs in from a remember-me token. The token is rotated on
// every successful use.
func (s *AuthService) Reauthenticate(ctx context.Context, input ReauthInput) (LoginResult, error) {
	reauthFailed := &Error{Kind: KindAuthenticationFailed, Message: msgReauthRequired}
	if input.Token == "" || input.AccountCookie == "" {
		return LoginResult{}, reauthFailed
	}

	key := rememberKey(input.ClientIP)
	if err := s.checkLimit(ctx, "remember", key, input.ClientIP); err != nil {
		return LoginResult{}, err
	}

	cookieAccount, err := security.ParseAccountCookie(s.cfg.CookieSecret, input.AccountCookie)
	if err != nil {
		return LoginResult{}, reauthFailed
	}

	accountID, err := s.remember.Validate(ctx, input.Token)
	if err != nil {
		if errors.Is(err, ErrRememberTokenInvalid) {
			return LoginResult{}, reauthFailed
		}
		return LoginResult{}, internalError(err)
	}
	if accountID != cookieAccount {
		return LoginResult{}, reauthFailed
	}

	creds, err := s.accounts.LookupCredentialsByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return LoginResult{}, reauthFailed
		}
		return LoginResult{}, internalError(err)
	}
	if err := checkStanding(creds); err != nil {
		if revokeErr := s.remember.Revoke(ctx, accountID); revokeErr != nil {
			s.log.Warn().Err(revokeErr).Str("account_id", accountID).Msg("revoke remember token failed")
		}
		return LoginResult{}, err
	}

	result, err := s.establish(ctx, input.State, creds, true)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("reset remember attempts failed")
	}

	s.publish(ctx, models.AuthEvent{
		Kind:           models.AuthEventReauthenticated,
		AccountID:      creds.AccountID,
		OrganizationID: creds.OrganizationID,
		ClientIP:       input.ClientIP,
	})
	return result, nil
}

// Logout revokes the remember token and destroys the session. The session is
// destroyed even when revocation fails; the returned error reports any
// cleanup step that did not complete.
func (s *AuthService) Logout(ctx context.Context, state *session.State, clientIP string) error {
	var accountID, organizationID string
	if state.Authenticated() {
		accountID = state.Claims.AccountID
		organizationID = state.Claims.OrganizationID
	}

	var revokeErr error
	if accountID != "" {
		if revokeErr = s.remember.Revoke(ctx, accountID); revokeErr != nil {
			s.log.Error().Err(revokeErr).Str("account_id", accountID).Msg("logout: clear remember token failed")
		}
	}

	destroyErr := s.sessions.Destroy(ctx, state)
	if destroyErr != nil {
		s.log.Error().Err(destroyErr).Msg("logout: destroy session failed")
	}

	if accountID != "" {
		s.publish(ctx, models.AuthEvent{
			Kind:           models.AuthEventLogout,
			AccountID:      accountID,
			OrganizationID: organizationID,
			ClientIP:       clientIP,
		})
	}

	if err := errors.Join(revokeErr, destroyErr); err != nil {
		return internalError(err)
	}
	return nil
}

func (s *AuthService) establish(ctx context.Context, state *session.State, creds models.Credentials, remember bool) (LoginResult, error) {
	now := s.now().UTC()
	claims := ClaimsFor(creds, now)
	if err := s.sessions.Establish(ctx, state, claims); err != nil {
		return LoginResult{}, internalError(err)
	}

	result := LoginResult{Claims: claims}
	if remember {
		token, expires, err := s.remember.Issue(ctx, creds.AccountID)
		if err != nil {
			s.log.Error().Err(err).Str("account_id", creds.AccountID).Msg("issue remember token failed")
		} else {
			cookie, err := security.SignAccountCookie(s.cfg.CookieSecret, creds.AccountID, s.remember.TTL())
			if err != nil {
				s.log.Error().Err(err).Str("account_id", creds.AccountID).Msg("sign account cookie failed")
			} else {
				result.RememberToken = token
				result.AccountCookie = cookie
				result.RememberExpires = expires
			}
		}
	}

	if err := s.accounts.TouchLastLogin(ctx, creds.AccountID, now); err != nil {
		s.log.Warn().Err(err).Str("account_id", creds.AccountID).Msg("update last login failed")
	}
	return result, nil
}

func (s *AuthService) checkLimit(ctx context.Context, action, key, clientIP string) error {
	allowed, err := s.limiter.CheckAndIncrement(ctx, key, s.cfg.LoginMaxAttempts, s.cfg.LoginWindow)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Bool("fail_open", s.cfg.FailOpen).Msg("attempt limiter unavailable")
		if s.cfg.FailOpen {
			return nil
		}
		return rateLimited(err)
	}
	if allowed {
		return nil
	}

	if s.recorder != nil {
		s.recorder.RateLimited(action)
	}
	s.recordLogin("rate_limited")
	s.publish(ctx, models.AuthEvent{
		Kind:     models.AuthEventLoginRateLimited,
		ClientIP: clientIP,
		Detail:   action,
	})
	return rateLimited(nil)
}

func (s *AuthService) waitHashBudget(ctx context.Context) error {
	if s.hashBudget == nil {
		return nil
	}
	if err := s.hashBudget.Wait(ctx); err != nil {
		return internalError(err)
	}
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, accountID, clientIP, detail string) {
	s.recordLogin("failed")
	s.publish(ctx, models.AuthEvent{
		Kind:      models.AuthEventLoginFailed,
		AccountID: accountID,
		ClientIP:  clientIP,
		Detail:    detail,
	})
}

func (s *AuthService) recordLogin(outcome string) {
	if s.recorder != nil {
		s.recorder.LoginOutcome(outcome)
	}
}

func (s *AuthService) publish(ctx context.Context, event models.AuthEvent) {
	publishEvent(ctx, s.events, s.recorder, s.log, event)
}

func publishEvent(ctx context.Context, events EventPublisher, recorder Recorder, log zerolog.Logger, event models.AuthEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("kind", string(event.Kind)).Msg("publish auth event failed")
		if recorder != nil {
			recorder.EventPublishFailed()
		}
	}
}

// checkStanding runs after password verification so a disabled account is
// only revealed to someone holding its password.
func checkStanding(creds models.Credentials) error {
	if !creds.IsActive {
		return &Error{Kind: KindAccountDisabled, Message: msgAccountDisabled}
	}
	if creds.OrganizationStatus != models.OrganizationStatusActive {
		return &Error{Kind: KindOrganizationSuspended, Message: msgOrganizationSuspended}
	}
	return nil
}

func ClaimsFor(creds models.Credentials, now time.Time) session.Claims {
	return session.Claims{
		AccountID:        creds.AccountID,
		UserCode:         creds.UserCode,
		UserName:         creds.UserName,
		Email:            creds.Email,
		OrganizationID:   creds.OrganizationID,
		OrganizationName: creds.OrganizationName,
		OrganizationCode: creds.OrganizationCode,
		Role:             creds.Role,
		IsCompanyAdmin:   creds.IsCompanyAdmin,
		LoginAt:          now,
		LastActivityAt:   now,
	}
}

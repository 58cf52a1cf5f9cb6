package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/ratelimit"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "correct-horse"
	testSecret   = "test-cookie-secret-0123456789abcdef"
	testIP       = "203.0.113.7"
)

type rememberRow struct {
	hash    []byte
	expires time.Time
}

// memAccounts is an in-memory AccountStore and RememberStore.
type memAccounts struct {
	mu        sync.Mutex
	byEmail   map[string]models.Credentials
	remember  map[string]rememberRow
	lastLogin map[string]time.Time
	clearErr  error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byEmail:   map[string]models.Credentials{},
		remember:  map[string]rememberRow{},
		lastLogin: map[string]time.Time{},
	}
}

func (m *memAccounts) add(c models.Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[strings.ToLower(c.Email)] = c
}

func (m *memAccounts) update(email string, fn func(*models.Credentials)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.byEmail[email]
	fn(&c)
	m.byEmail[email] = c
}

func (m *memAccounts) LookupCredentials(_ context.Context, email string) (models.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEmail[email]
	if !ok {
		return models.Credentials{}, repository.ErrAccountNotFound
	}
	return c, nil
}

func (m *memAccounts) LookupCredentialsByID(_ context.Context, id string) (models.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byEmail {
		if c.AccountID == id {
			return c, nil
		}
	}
	return models.Credentials{}, repository.ErrAccountNotFound
}

func (m *memAccounts) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogin[id] = at
	return nil
}

func (m *memAccounts) SetRememberToken(_ context.Context, id string, hash []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remember[id] = rememberRow{hash: hash, expires: expiresAt}
	return nil
}

func (m *memAccounts) ClearRememberToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.remember, id)
	return nil
}

func (m *memAccounts) FindByRememberHash(_ context.Context, hash []byte) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.remember {
		if bytes.Equal(row.hash, hash) {
			expires := row.expires
			return models.Account{ID: id, RememberTokenHash: row.hash, RememberExpiresAt: &expires}, nil
		}
	}
	return models.Account{}, repository.ErrAccountNotFound
}

func (m *memAccounts) rememberFor(id string) (rememberRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.remember[id]
	return row, ok
}

type recordingEvents struct {
	mu    sync.Mutex
	kinds []models.AuthEventKind
}

func (r *recordingEvents) Publish(_ context.Context, event models.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, event.Kind)
	return nil
}

func (r *recordingEvents) has(kind models.AuthEventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type brokenLimiter struct{}

func (brokenLimiter) CheckAndIncrement(context.Context, string, int, time.Duration) (bool, error) {
	return false, ratelimit.ErrUnavailable
}

func (brokenLimiter) Reset(context.Context, string) error { return ratelimit.ErrUnavailable }

type testEnv struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	limiter  *ratelimit.Limiter
	sessions *session.Manager
	hasher   *security.PasswordHasher
	accounts *memAccounts
	events   *recordingEvents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	hasher, err := security.NewPasswordHasher(
		security.WithAlgorithm(security.AlgorithmBcrypt),
		security.WithBcryptCost(4),
	)
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	return &testEnv{
		mr:       mr,
		rdb:      rdb,
		limiter:  ratelimit.New(rdb, "rl:"),
		sessions: session.NewManager(rdb, session.Config{IdleTimeout: time.Hour, AbsoluteTimeout: 12 * time.Hour}),
		hasher:   hasher,
		accounts: newMemAccounts(),
		events:   &recordingEvents{},
	}
}

func (e *testEnv) seedAccount(t *testing.T) models.Credentials {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	c := models.Credentials{
		AccountID:          "acct-1",
		UserCode:           "ABC0001",
		UserName:           "Tanaka Hanako",
		Email:              testEmail,
		PasswordHash:       hash,
		Role:               models.UserRoleOrganizationAdmin,
		IsCompanyAdmin:     true,
		IsActive:           true,
		OrganizationID:     "org-1",
		OrganizationName:   "Smiley Kitchen",
		OrganizationCode:   "ABC",
		OrganizationStatus: models.OrganizationStatusActive,
	}
	e.accounts.add(c)
	return c
}

func (e *testEnv) authService(limiter AttemptLimiter) *AuthService {
	if limiter == nil {
		limiter = e.limiter
	}
	return NewAuthService(AuthDeps{
		Accounts:  e.accounts,
		Remember:  NewRememberTokenService(e.accounts, 30*24*time.Hour),
		Limiter:   limiter,
		Sessions:  e.sessions,
		Passwords: e.hasher,
		Events:    e.events,
	}, AuthConfig{
		LoginMaxAttempts: 5,
		LoginWindow:      300 * time.Second,
		CookieSecret:     testSecret,
	}, zerolog.Nop())
}

func (e *testEnv) anonymous(t *testing.T, id string) *session.State {
	t.Helper()
	state, err := e.sessions.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return state
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *service.Error, got %T: %v", err, err)
	}
	if svcErr.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, svcErr.Kind, err)
	}
}

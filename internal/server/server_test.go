package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/config"
	"github.com/hipper-gif/meal-delivery/internal/handlers"
	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/ratelimit"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
	"github.com/hipper-gif/meal-delivery/internal/service"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

const (
	cookieSecret = "server-test-secret-0123456789abcdef"
	adminEmail   = "admin@example.com"
	adminPass    = "correct-horse"
)

// memStore backs both the account and the provisioning paths.
type memStore struct {
	mu       sync.Mutex
	creds    map[string]models.Credentials
	orgs     map[string]models.Organization
	remember map[string][]byte
	expires  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		creds:    map[string]models.Credentials{},
		orgs:     map[string]models.Organization{},
		remember: map[string][]byte{},
		expires:  map[string]time.Time{},
	}
}

func (m *memStore) LookupCredentials(_ context.Context, email string) (models.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[email]
	if !ok {
		return models.Credentials{}, repository.ErrAccountNotFound
	}
	return c, nil
}

func (m *memStore) LookupCredentialsByID(_ context.Context, id string) (models.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.AccountID == id {
			return c, nil
		}
	}
	return models.Credentials{}, repository.ErrAccountNotFound
}

func (m *memStore) TouchLastLogin(context.Context, string, time.Time) error { return nil }

func (m *memStore) SetRememberToken(_ context.Context, id string, hash []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remember[id] = hash
	m.expires[id] = expiresAt
	return nil
}

func (m *memStore) ClearRememberToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.remember, id)
	delete(m.expires, id)
	return nil
}

func (m *memStore) FindByRememberHash(_ context.Context, hash []byte) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.remember {
		if bytes.Equal(h, hash) {
			exp := m.expires[id]
			return models.Account{ID: id, RememberTokenHash: h, RememberExpiresAt: &exp}, nil
		}
	}
	return models.Account{}, repository.ErrAccountNotFound
}

func (m *memStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.creds[email]
	return ok, nil
}

func (m *memStore) WithinProvisioningTx(ctx context.Context, fn func(context.Context, repository.ProvisioningTx) error) error {
	return fn(ctx, &memTx{store: m})
}

func (m *memStore) GetByID(_ context.Context, id string) (models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, org := range m.orgs {
		if org.ID == id {
			return org, nil
		}
	}
	return models.Organization{}, repository.ErrOrganizationNotFound
}

type memTx struct {
	store *memStore
	org   *models.Organization
}

func (t *memTx) OrganizationCodeExists(_ context.Context, code string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, ok := t.store.orgs[code]
	return ok, nil
}

func (t *memTx) CreateOrganization(_ context.Context, org *models.Organization) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.orgs[org.Code]; ok {
		return repository.ErrOrganizationCodeTaken
	}
	t.store.orgs[org.Code] = *org
	t.org = org
	return nil
}

func (t *memTx) CreateAccount(_ context.Context, a *models.Account) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.creds[a.Email] = models.Credentials{
		AccountID:          a.ID,
		UserCode:           a.UserCode,
		UserName:           a.UserName,
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		Role:               a.Role,
		IsCompanyAdmin:     a.IsCompanyAdmin,
		IsActive:           a.IsActive,
		OrganizationID:     a.OrganizationID,
		OrganizationName:   t.org.Name,
		OrganizationCode:   t.org.Code,
		OrganizationStatus: t.org.Status,
	}
	return nil
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type testServer struct {
	engine *gin.Engine
	store  *memStore
	mr     *miniredis.Miniredis
	cfg    *config.AppConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{RequestTimeout: 5 * time.Second},
		Session:     config.SessionConfig{CookieName: "meal_session", IdleTimeout: time.Hour, AbsoluteTimeout: 12 * time.Hour},
		Redirects:   config.RedirectConfig{AfterLogin: "/", AfterLogout: "/login", AfterSignup: "/"},
	}

	hasher, err := security.NewPasswordHasher(security.WithAlgorithm(security.AlgorithmBcrypt), security.WithBcryptCost(4))
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	hash, err := hasher.Hash(adminPass)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	store := newMemStore()
	store.orgs["ABC"] = models.Organization{ID: "org-1", Code: "ABC", Name: "Smiley Kitchen", Status: models.OrganizationStatusActive}
	store.creds[adminEmail] = models.Credentials{
		AccountID:          "acct-1",
		UserCode:           "ABC0001",
		UserName:           "Tanaka Hanako",
		Email:              adminEmail,
		PasswordHash:       hash,
		Role:               models.UserRoleOrganizationAdmin,
		IsCompanyAdmin:     true,
		IsActive:           true,
		OrganizationID:     "org-1",
		OrganizationName:   "Smiley Kitchen",
		OrganizationCode:   "ABC",
		OrganizationStatus: models.OrganizationStatusActive,
	}

	sessions := session.NewManager(rdb, session.Config{IdleTimeout: time.Hour, AbsoluteTimeout: 12 * time.Hour})
	limiter := ratelimit.New(rdb, "rl:")

	auth := service.NewAuthService(service.AuthDeps{
		Accounts:  store,
		Remember:  service.NewRememberTokenService(store, 30*24*time.Hour),
		Limiter:   limiter,
		Sessions:  sessions,
		Passwords: hasher,
	}, service.AuthConfig{
		LoginMaxAttempts: 5,
		LoginWindow:      300 * time.Second,
		CookieSecret:     cookieSecret,
	}, zerolog.Nop())

	signup := service.NewAccountProvisioner(service.ProvisionerDeps{
		Store:    store,
		Codes:    service.NewCodeGenerator(3, 100),
		Hasher:   hasher,
		Limiter:  limiter,
		Sessions: sessions,
	}, service.SignupConfig{MinPasswordLength: 8, MaxAttempts: 10, Window: time.Hour}, zerolog.Nop())

	handlerSet := handlers.NewHandlerSet(zerolog.Nop(), cfg, handlers.Deps{
		Auth:          auth,
		Signup:        signup,
		Sessions:      sessions,
		Organizations: store,
		DB:            okPinger{},
		Cache:         rdb,
	})

	engine, err := NewEngine(cfg, zerolog.Nop(), nil, handlerSet)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &testServer{engine: engine, store: store, mr: mr, cfg: cfg}
}

func (s *testServer) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func loginForm(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func TestLoginWithoutRememberSetsOnlySessionCookie(t *testing.T) {
	s := newTestServer(t)

	rec := s.post("/login", loginForm(adminEmail, adminPass))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["redirect_url"] != "/" {
		t.Fatalf("unexpected body: %v", body)
	}
	user := body["user"].(map[string]interface{})
	if user["id"] != "acct-1" || user["user_code"] != "ABC0001" || user["company_name"] != "Smiley Kitchen" || user["is_company_admin"] != true {
		t.Fatalf("unexpected user: %v", user)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "meal_session" {
		t.Fatalf("expected only the session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteStrictMode {
		t.Fatalf("session cookie attributes wrong: %+v", cookies[0])
	}

	who := s.get("/session", cookies[0])
	if who.Code != http.StatusOK {
		t.Fatalf("session lookup failed: %d", who.Code)
	}
}

func TestLoginWithRememberSetsHashedToken(t *testing.T) {
	s := newTestServer(t)

	form := loginForm(adminEmail, adminPass)
	form.Set("remember_me", "1")
	rec := s.post("/login", form)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	token := cookieNamed(rec, "remember_token")
	if token == nil {
		t.Fatalf("remember_token cookie missing")
	}
	if !token.HttpOnly || token.SameSite != http.SameSiteStrictMode {
		t.Fatalf("remember cookie attributes wrong: %+v", token)
	}
	if until := time.Until(token.Expires); until < 29*24*time.Hour || until > 30*24*time.Hour+time.Minute {
		t.Fatalf("remember cookie should expire in 30 days, got %v", until)
	}
	if cookieNamed(rec, "remember_user") == nil {
		t.Fatalf("remember_user cookie missing")
	}

	stored := s.store.remember["acct-1"]
	if !bytes.Equal(stored, security.HashToken(token.Value)) {
		t.Fatalf("stored hash does not match sha256(cookie)")
	}
	if string(stored) == token.Value {
		t.Fatalf("cookie equals persisted value")
	}
}

func TestUnknownEmailAndWrongPasswordResponsesMatch(t *testing.T) {
	s := newTestServer(t)

	unknown := s.post("/login", loginForm("ghost@example.com", adminPass))
	wrong := s.post("/login", loginForm(adminEmail, "nope-nope"))

	if unknown.Code != http.StatusBadRequest || wrong.Code != http.StatusBadRequest {
		t.Fatalf("expected 400/400, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies differ: %s vs %s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestSixthLoginReturns429(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 5; i++ {
		if rec := s.post("/login", loginForm(adminEmail, "wrong-password")); rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i+1, rec.Code)
		}
	}
	rec := s.post("/login", loginForm(adminEmail, adminPass))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body := decode(t, rec); body["success"] != false || body["error"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}

	s.mr.FastForward(301 * time.Second)
	if rec := s.post("/login", loginForm(adminEmail, adminPass)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after window, got %d", rec.Code)
	}
}

func TestWrongMethodReturns405(t *testing.T) {
	s := newTestServer(t)

	rec := s.get("/login")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if body := decode(t, rec); body["success"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	s := newTestServer(t)

	form := loginForm(adminEmail, adminPass)
	form.Set("remember_me", "on")
	login := s.post("/login", form)
	sess := cookieNamed(login, "meal_session")

	rec := s.post("/logout", url.Values{}, sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["redirect_url"] != "/login" {
		t.Fatalf("unexpected body: %v", body)
	}
	for _, name := range []string{"remember_token", "remember_user", "meal_session"} {
		c := cookieNamed(rec, name)
		if c == nil || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: %+v", name, c)
		}
	}
	if _, ok := s.store.remember["acct-1"]; ok {
		t.Fatalf("remember token not revoked")
	}
	if who := s.get("/session", sess); who.Code != http.StatusUnauthorized {
		t.Fatalf("old session still valid: %d", who.Code)
	}
}

func TestRememberReauthenticates(t *testing.T) {
	s := newTestServer(t)

	form := loginForm(adminEmail, adminPass)
	form.Set("remember_me", "1")
	login := s.post("/login", form)
	token := cookieNamed(login, "remember_token")
	user := cookieNamed(login, "remember_user")

	rec := s.post("/login/remember", url.Values{}, token, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rotated := cookieNamed(rec, "remember_token")
	if rotated == nil || rotated.Value == token.Value {
		t.Fatalf("remember token not rotated")
	}

	replay := s.post("/login/remember", url.Values{}, token, user)
	if replay.Code != http.StatusBadRequest {
		t.Fatalf("replayed token should fail, got %d", replay.Code)
	}
}

func signupForm(email string) url.Values {
	return url.Values{
		"postal_code":            {"1000001"},
		"prefecture":             {"Tokyo"},
		"city":                   {"Chiyoda"},
		"address_line1":          {"1-1 Marunouchi"},
		"company_name":           {"Happy Lunch"},
		"company_name_kana":      {"Happii Ranchi"},
		"delivery_location_name": {"Reception"},
		"company_phone":          {"03-0000-0000"},
		"user_name":              {"Sato Ken"},
		"user_name_kana":         {"Sato Ken"},
		"email":                  {email},
		"email_confirm":          {email},
		"password":               {"longenough"},
		"password_confirm":       {"longenough"},
	}
}

func TestSignupReturnsGeneratedCodes(t *testing.T) {
	s := newTestServer(t)

	rec := s.post("/signup", signupForm("founder@example.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	code, _ := data["company_code"].(string)
	if len(code) != 3 || strings.ToUpper(code) != code {
		t.Fatalf("unexpected company_code %q", code)
	}
	if data["user_code"] != code+"0001" {
		t.Fatalf("user_code %v not derived from %q", data["user_code"], code)
	}

	sess := cookieNamed(rec, "meal_session")
	if sess == nil {
		t.Fatalf("founder not logged in")
	}
	org := s.get("/organization", sess)
	if org.Code != http.StatusOK {
		t.Fatalf("company admin should read organization, got %d", org.Code)
	}
}

func TestSignupMismatchReturns400(t *testing.T) {
	s := newTestServer(t)

	form := signupForm("founder@example.com")
	form.Set("password_confirm", "different!")
	rec := s.post("/signup", form)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(s.store.orgs) != 1 {
		t.Fatalf("organization written despite validation failure")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.get("/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body["database"] != "ok" || body["cache"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *miniredis.Miniredis) {
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
	return NewManager(rdb, cfg), mr
}

func testClaims() Claims {
	return Claims{
		AccountID:        "acct-1",
		OrganizationID:   "org-1",
		OrganizationName: "Smiley Kitchen",
		OrganizationCode: "ABC",
		Role:             models.UserRoleOrganizationAdmin,
		IsCompanyAdmin:   true,
	}
}

func TestEstablishRotatesIdentifier(t *testing.T) {
	m, mr := newTestManager(t, Config{IdleTimeout: time.Hour})
	ctx := context.Background()

	// An attacker-chosen identifier presented before login.
	mr.Set("sess:attacker-known", "{}")
	state, err := m.Load(ctx, "attacker-known")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := m.Establish(ctx, state, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if state.ID == "" || state.ID == "attacker-known" {
		t.Fatalf("identifier was not rotated: %q", state.ID)
	}
	if mr.Exists("sess:attacker-known") {
		t.Fatalf("old identifier must be invalidated")
	}
	if !mr.Exists("sess:" + state.ID) {
		t.Fatalf("new identifier must be stored")
	}
	if ttl := mr.TTL("sess:" + state.ID); ttl != time.Hour {
		t.Fatalf("expected idle ttl, got %v", ttl)
	}

	stale, err := m.Load(ctx, "attacker-known")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stale.Authenticated() {
		t.Fatalf("old identifier must not resolve to the authenticated session")
	}

	fresh, err := m.Load(ctx, state.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !fresh.Authenticated() || fresh.Claims.AccountID != "acct-1" || fresh.Claims.OrganizationCode != "ABC" {
		t.Fatalf("unexpected claims: %+v", fresh.Claims)
	}
	if fresh.Claims.LoginAt.IsZero() || fresh.Claims.LastActivityAt.IsZero() {
		t.Fatalf("timestamps must be recorded")
	}
}

func TestDestroyClearsState(t *testing.T) {
	m, mr := newTestManager(t, Config{})
	ctx := context.Background()

	state := &State{}
	if err := m.Establish(ctx, state, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	id := state.ID

	if err := m.Destroy(ctx, state); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if state.Authenticated() || state.ID != "" {
		t.Fatalf("state must be anonymous after destroy")
	}
	if mr.Exists("sess:" + id) {
		t.Fatalf("stored session must be removed")
	}
}

func TestDestroyClearsStateWhenStoreFails(t *testing.T) {
	m, mr := newTestManager(t, Config{})
	ctx := context.Background()

	state := &State{}
	if err := m.Establish(ctx, state, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	mr.Close()

	err := m.Destroy(ctx, state)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if state.Authenticated() {
		t.Fatalf("state must be cleared even on store failure")
	}
}

func TestAbsoluteTimeout(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour, AbsoluteTimeout: 2 * time.Hour})
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	state := &State{}
	if err := m.Establish(ctx, state, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	loaded, err := m.Load(ctx, state.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Authenticated() {
		t.Fatalf("session past the absolute timeout must be anonymous")
	}
}

func TestIdleTimeout(t *testing.T) {
	m, mr := newTestManager(t, Config{IdleTimeout: 10 * time.Minute})
	ctx := context.Background()

	state := &State{}
	if err := m.Establish(ctx, state, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	mr.FastForward(11 * time.Minute)

	loaded, err := m.Load(ctx, state.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Authenticated() {
		t.Fatalf("idle session must expire")
	}
}

func TestContextRoundTrip(t *testing.T) {
	state := &State{ID: "x", Claims: &Claims{AccountID: "acct-1"}}
	ctx := WithState(context.Background(), state)
	got, ok := FromContext(ctx)
	if !ok || got != state {
		t.Fatalf("expected state from context")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no state in empty context")
	}
}

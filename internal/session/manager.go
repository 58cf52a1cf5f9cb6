package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hipper-gif/meal-delivery/internal/security"
)

var ErrStoreUnavailable = errors.New("session store unavailable")

type Config struct {
	KeyPrefix       string
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
}

type Manager struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

func NewManager(client redis.UniversalClient, cfg Config) *Manager {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sess:"
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Manager{
		redis: client,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (m *Manager) key(id string) string {
	return m.cfg.KeyPrefix + id
}

// Load resolves the identifier presented by the client. Unknown, idle-expired
// and absolute-expired identifiers yield an anonymous state that still carries
// the presented ID, so a later Establish can invalidate it.
func (m *Manager) Load(ctx context.Context, id string) (*State, error) {
	state := &State{ID: id}
	if id == "" {
		return state, nil
	}

	raw, err := m.redis.Get(ctx, m.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil || claims.AccountID == "" {
		_ = m.redis.Del(ctx, m.key(id)).Err()
		return state, nil
	}

	now := m.now()
	if m.cfg.AbsoluteTimeout > 0 && now.Sub(claims.LoginAt) > m.cfg.AbsoluteTimeout {
		_ = m.redis.Del(ctx, m.key(id)).Err()
		return state, nil
	}

	claims.LastActivityAt = now
	payload, err := json.Marshal(claims)
	if err != nil {
		return state, fmt.Errorf("encode session: %w", err)
	}
	// XX keeps a concurrent Destroy from being undone by this refresh.
	if err := m.redis.SetXX(ctx, m.key(id), payload, m.cfg.IdleTimeout).Err(); err != nil {
		return state, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	state.Claims = &claims
	return state, nil
}

// Establish authenticates the request under a brand-new identifier. The new
// key is written and the presented key deleted in one MULTI/EXEC, so there is
// no moment where both identifiers resolve, and claims never attach to an
// identifier the client chose.
func (m *Manager) Establish(ctx context.Context, state *State, claims Claims) error {
	newID, err := security.RandomToken(32)
	if err != nil {
		return err
	}

	now := m.now()
	claims.LoginAt = now
	claims.LastActivityAt = now

	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key(newID), payload, m.cfg.IdleTimeout)
		if state.ID != "" {
			pipe.Del(ctx, m.key(state.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	state.ID = newID
	state.Claims = &claims
	return nil
}

// Destroy logs the request out. The in-memory state is cleared even when the
// store delete fails; the error is returned for logging only.
func (m *Manager) Destroy(ctx context.Context, state *State) error {
	id := state.ID
	state.ID = ""
	state.Claims = nil

	if id == "" {
		return nil
	}
	if err := m.redis.Del(ctx, m.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

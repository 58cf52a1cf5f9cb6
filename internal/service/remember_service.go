package service

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
)

// rememberTokenBytes gives 256 bits of entropy.
const rememberTokenBytes = 32

var ErrRememberTokenInvalid = errors.New("remember token invalid")

type RememberStore interface {
	SetRememberToken(ctx context.Context, id string, hash []byte, expiresAt time.Time) error
	ClearRememberToken(ctx context.Context, id string) error
	FindByRememberHash(ctx context.Context, hash []byte) (models.Account, error)
}

// RememberTokenService issues long-lived reauthentication tokens. Only the
// sha256 of a token is persisted; the plaintext goes to the client once.
type RememberTokenService struct {
	store RememberStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRememberTokenService(store RememberStore, ttl time.Duration) *RememberTokenService {
	return &RememberTokenService{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *RememberTokenService) TTL() time.Duration { return s.ttl }

// Issue replaces any earlier token for the account.
func (s *RememberTokenService) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	token, err := security.RandomToken(rememberTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	if err := s.store.SetRememberToken(ctx, accountID, security.HashToken(token), expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("persist remember token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *RememberTokenService) Revoke(ctx context.Context, accountID string) error {
	if err := s.store.ClearRememberToken(ctx, accountID); err != nil {
		return fmt.Errorf("revoke remember token: %w", err)
	}
	return nil
}

// Validate returns the account holding token. Unknown, malformed and expired
// tokens all yield ErrRememberTokenInvalid.
func (s *RememberTokenService) Validate(ctx context.Context, token string) (string, error) {
	if len(token) != rememberTokenBytes*2 {
		return "", ErrRememberTokenInvalid
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", ErrRememberTokenInvalid
	}

	presented := security.HashToken(token)
	account, err := s.store.FindByRememberHash(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", ErrRememberTokenInvalid
		}
		return "", fmt.Errorf("find remember token: %w", err)
	}

	if subtle.ConstantTimeCompare(account.RememberTokenHash, presented) != 1 {
		return "", ErrRememberTokenInvalid
	}
	if account.RememberExpiresAt == nil || !s.now().Before(*account.RememberExpiresAt) {
		return "", ErrRememberTokenInvalid
	}
	return account.ID, nil
}

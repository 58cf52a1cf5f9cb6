// Package session owns the server-side login state. A client holds only an
// opaque identifier; the claims live in Redis under that identifier and are
// moved to a fresh identifier whenever the client authenticates.
package session

import (
	"context"
	"time"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

type Claims struct {
	AccountID        string          `json:"account_id"`
	UserCode         string          `json:"user_code"`
	UserName         string          `json:"user_name"`
	Email            string          `json:"email"`
	OrganizationID   string          `json:"organization_id"`
	OrganizationName string          `json:"organization_name"`
	OrganizationCode string          `json:"organization_code"`
	Role             models.UserRole `json:"role"`
	IsCompanyAdmin   bool            `json:"is_company_admin"`
	LoginAt          time.Time       `json:"login_at"`
	LastActivityAt   time.Time       `json:"last_activity_at"`
}

// State is the per-request view of the session. Claims is nil while the
// client is anonymous.
type State struct {
	ID     string
	Claims *Claims
}

func (s *State) Authenticated() bool {
	return s != nil && s.Claims != nil
}

type contextKey struct{}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, contextKey{}, state)
}

// FromContext returns the request's session state. Callers outside the auth
// core must treat it as read-only.
func FromContext(ctx context.Context) (*State, bool) {
	state, ok := ctx.Value(contextKey{}).(*State)
	return state, ok && state != nil
}

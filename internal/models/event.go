package models

import "time"

type AuthEventKind string

const (
	AuthEventLoginSucceeded     AuthEventKind = "login_succeeded"
	AuthEventLoginFailed        AuthEventKind = "login_failed"
	AuthEventLoginRateLimited   AuthEventKind = "login_rate_limited"
	AuthEventLogout             AuthEventKind = "logout"
	AuthEventReauthenticated    AuthEventKind = "reauthenticated"
	AuthEventSignupCompleted    AuthEventKind = "signup_completed"
	AuthEventCodeSpaceExhausted AuthEventKind = "code_space_exhausted"
)

type AuthEvent struct {
	ID             string
	Kind           AuthEventKind
	AccountID      string
	OrganizationID string
	ClientIP       string
	Detail         string
	OccurredAt     time.Time
}

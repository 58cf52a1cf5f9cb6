package service

import (
	"errors"
	"fmt"
)

// Kind tags a service failure so the HTTP boundary can pick a status code
// without matching on messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimited
	KindAuthenticationFailed
	KindAccountDisabled
	KindOrganizationSuspended
	KindConflict
	KindCodeSpaceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindAccountDisabled:
		return "account_disabled"
	case KindOrganizationSuspended:
		return "organization_suspended"
	case KindConflict:
		return "conflict"
	case KindCodeSpaceExhausted:
		return "code_space_exhausted"
	default:
		return "internal"
	}
}

// Error carries a user-facing Message; Err holds the internal cause and is
// only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err; untagged errors are internal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// PublicMessage is the text safe to return to a client.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Kind != KindInternal && svcErr.Kind != KindCodeSpaceExhausted {
		return svcErr.Message
	}
	return msgInternal
}

const (
	msgInternal              = "A system error occurred. Please try again later."
	msgInvalidCredentials    = "Email address or password is incorrect."
	msgRateLimited           = "Too many attempts. Please wait a few minutes and try again."
	msgAccountDisabled       = "This account has been disabled. Please contact an administrator."
	msgOrganizationSuspended = "Your organization's account is suspended. Please contact an administrator."
	msgReauthRequired        = "Your saved login has expired. Please log in again."
)

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: msgInternal, Err: err}
}

func invalidCredentials() *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: msgInvalidCredentials}
}

func rateLimited(err error) *Error {
	return &Error{Kind: KindRateLimited, Message: msgRateLimited, Err: err}
}

// Package retry holds the bounded retry combinator used where a collision is
// an expected outcome rather than a failure.
package retry

import (
	"context"
	"errors"
)

// ErrExhausted is returned when every attempt reported a retryable outcome.
var ErrExhausted = errors.New("retry attempts exhausted")

// Attempt runs once per try. done=false with a nil error asks for another try;
// a non-nil error aborts immediately.
type Attempt[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Bounded calls fn at most maxAttempts times and returns the first value
// marked done. It never loops past the bound.
func Bounded[T any](ctx context.Context, maxAttempts int, fn Attempt[T]) (T, int, error) {
	var zero T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		value, done, err := fn(ctx, attempt)
		if err != nil {
			return zero, attempt, err
		}
		if done {
			return value, attempt, nil
		}
	}
	return zero, maxAttempts, ErrExhausted
}

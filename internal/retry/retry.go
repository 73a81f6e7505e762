// Package retry is the single outbound-call policy shared by every adapter:
// a small fixed attempt budget with capped exponential backoff, behind a
// consecutive-failure circuit breaker.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds one adapter call.
type Policy struct {
	// MaxAttempts includes the first try. Zero means one attempt.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt; it doubles per
	// attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Timeout bounds each individual attempt, not the whole call.
	Timeout time.Duration
}

// DefaultPolicy matches the per-adapter defaults in config.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseBackoff: 200 * time.Millisecond,
	MaxBackoff:  2 * time.Second,
	Timeout:     10 * time.Second,
}

// Permanent wraps an error that must not be retried (semantic failures,
// cancelled turns).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Do runs fn with the policy's budget. Each attempt gets its own deadline;
// context cancellation stops both the attempt and the backoff wait.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := policy.BaseBackoff
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// Package retry runs an operation until it succeeds, the attempt budget is
// spent, or the policy's overall deadline passes
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt failed or the policy timed out
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how an operation is retried
type Policy struct {
	// MaxAttempts bounds the number of calls; zero means unbounded, in which
	// case Timeout must be set
	MaxAttempts int
	// Timeout bounds the whole run including waits; zero means none
	Timeout time.Duration
	// Backoff returns the wait after the given failed attempt (1-based)
	Backoff func(attempt int) time.Duration
}

// Constant waits d between every attempt
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Linear waits step multiplied by the attempt number
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return step * time.Duration(attempt) }
}

// Exponential doubles base after each attempt, capped at max when max > 0
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(attempt-1)
		if max > 0 && (d > max || d <= 0) {
			return max
		}
		return d
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Stop wraps err so Do returns it immediately without further attempts
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil. The returned error wraps ErrExhausted and
// the last failure when the budget runs out; a Stop error is returned
// unwrapped of its marker; a cancelled ctx returns ctx.Err()
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts <= 0 && p.Timeout <= 0 {
		return fmt.Errorf("retry policy needs max attempts or a timeout")
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; p.MaxAttempts <= 0 || attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if p.MaxAttempts > 0 && attempt == p.MaxAttempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if !sleep(ctx, wait) {
			if p.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
			}
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy holds retry configuration
type Policy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultPolicy suits connecting to a local or nearby service
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		// Don't wait after the last attempt
		if attempt == p.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff(attempt, p)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// backoff is InitialWait * Multiplier^attempt, capped at MaxWait, with ±25% jitter
func backoff(attempt int, p Policy) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	wait += wait * 0.25 * (rand.Float64()*2 - 1)
	if wait < float64(p.InitialWait) {
		wait = float64(p.InitialWait)
	}
	return time.Duration(wait)
}

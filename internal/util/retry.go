package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff describes a retry schedule: Retries extra attempts after the first,
// waiting Base, 2*Base, 4*Base... between them, capped at Max when set.
type Backoff struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
}

// DefaultBackoff is used for store connections at startup.
var DefaultBackoff = Backoff{Retries: 3, Base: time.Second, Max: 8 * time.Second}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << attempt
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// RetryWithBackoff calls fn until it succeeds, returns a Permanent error or
// the schedule runs out. fn receives the 0-indexed attempt number.
// If the context is cancelled, RetryWithBackoff returns the context error immediately.
func RetryWithBackoff(ctx context.Context, b Backoff, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= b.Retries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == b.Retries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", b.Retries, lastErr)
}

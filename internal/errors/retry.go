package errors

import (
	"context"
	"errors"
	"time"
)

const (
	// MaxRetries is deliberately one: a transfer that lost a serialization
	// race deserves a second look at fresh quota state, but a second loss
	// means real contention and the caller should see the conflict.
	MaxRetries     = 1
	InitialBackoff = 50 * time.Millisecond
	MaxBackoff     = time.Second
)

// WithRetry runs fn, retrying while the error is marked retryable and the
// attempt budget lasts. Backoff doubles per attempt, capped at MaxBackoff.
func WithRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= MaxRetries || !IsRetryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(attempt)):
		}
	}
}

// IsRetryable reports whether a fresh attempt at err could succeed.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Retryable
}

func backoffFor(attempt int) time.Duration {
	backoff := InitialBackoff << attempt
	if backoff > MaxBackoff {
		return MaxBackoff
	}

	return backoff
}

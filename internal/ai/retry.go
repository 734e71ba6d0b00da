package ai

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts is the per-operation attempt budget.
	DefaultMaxAttempts = 3

	defaultBaseDelay = time.Second
)

// RetryConfig controls the backoff loop in Retry. The zero value means
// three attempts with a one second base delay.
type RetryConfig struct {
	MaxAttempts int           // attempt budget; <=0 uses DefaultMaxAttempts
	BaseDelay   time.Duration // delay after the first failure; doubles each attempt
	OnRetry     func(attempt int, delay time.Duration, err error)
}

// Retry invokes fn up to cfg.MaxAttempts times, attempts numbered from 0.
// After a failed attempt that is not the last it sleeps BaseDelay*2^attempt
// (1s, 2s, 4s with the defaults) with no jitter. Attempts are strictly
// sequential. Validation and configuration errors abort the loop
// immediately; cancelling ctx aborts both in-flight attempts and pending
// backoff sleeps. When the budget runs out the last error is wrapped in a
// *RetryExhaustedError.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := base << uint(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &RetryExhaustedError{Attempts: attempts, Err: lastErr}
}

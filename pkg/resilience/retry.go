package resilience

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how long an operation is attempted.
type RetryPolicy struct {
	// MaxAttempts includes the first call. Values below one mean one.
	MaxAttempts int
	// AttemptTimeout caps each attempt; zero leaves the caller's deadline alone.
	AttemptTimeout time.Duration
	// BaseDelay is multiplied by the attempt number between attempts.
	BaseDelay time.Duration
	// Retryable reports whether err is worth another attempt. Nil retries nothing.
	Retryable func(error) bool
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the attempts run out.
// A circuit-open error waits for the breaker's reported delay instead of the backoff.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = runAttempt(ctx, policy.AttemptTimeout, fn)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || policy.Retryable == nil || !policy.Retryable(lastErr) {
			return lastErr
		}

		wait := time.Duration(attempt) * policy.BaseDelay
		if retryAfter, open := RetryAfterOf(lastErr); open && retryAfter > wait {
			wait = retryAfter
		}
		if !SleepContext(ctx, wait) {
			return lastErr
		}
	}
	return lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// SleepContext waits for d and reports false when ctx ended first.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ABOUTME: Retry policy for upstream calls with bounded exponential backoff
// ABOUTME: Shared by the LLM clients and the orchestrator for consistent retry behavior
package util

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns exponential backoff with jitter
// Base delay is doubled each attempt, with random jitter up to 25%
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift (max 30 for safety)
	if attempt > 30 {
		attempt = 30
	}
	// Exponential: 2^attempt * base
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	// Cap at 30 seconds
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	// Add jitter: -25% to +25% using auto-seeded math/rand/v2
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

// RetryPolicy bounds how an upstream call is retried.
// MaxRetries counts retries after the first attempt.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	// Retryable decides whether an error is transient. Nil retries everything
	// except context cancellation.
	Retryable func(error) bool
	// Sleep is replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
}

// RetryError is returned when every attempt failed or a permanent error stopped the loop
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, fails permanently, or the policy is exhausted.
// Each attempt gets its own timeout derived from ctx.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, CalculateBackoff(p.BaseDelay, attempt)); err != nil {
				return &RetryError{Op: op, Attempts: attempts, Err: err}
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()
		attempts++

		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)

		// The caller gave up; further attempts cannot succeed.
		if ctx.Err() != nil {
			return &RetryError{Op: op, Attempts: attempts, Err: lastErr}
		}
		if !p.retryable(err) {
			return &RetryError{Op: op, Attempts: attempts, Err: lastErr}
		}
	}

	return &RetryError{Op: op, Attempts: attempts, Err: lastErr}
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

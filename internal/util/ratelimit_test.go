// ABOUTME: Tests for the upstream rate limiter
// ABOUTME: Validates unlimited mode, cancellation and recorded backoff
package util

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_UnlimitedDoesNotBlock(t *testing.T) {
	r := NewRateLimiter(0, 0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := r.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unlimited limiter took %v for 100 waits", elapsed)
	}
}

func TestRateLimiter_BackoffRespectsContext(t *testing.T) {
	r := NewRateLimiter(100, 1)
	r.Backoff(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Wait(ctx); err == nil {
		t.Error("Wait() should fail when backoff outlasts the context")
	}
}

func TestRateLimiter_BackoffNeverShrinks(t *testing.T) {
	r := NewRateLimiter(100, 1)
	r.Backoff(time.Hour)
	r.Backoff(time.Millisecond)

	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Until(retryAt) < 30*time.Minute {
		t.Errorf("shorter backoff replaced longer one: retryAt in %v", time.Until(retryAt))
	}
}

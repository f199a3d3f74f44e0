package store

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig parameterizes exponential backoff with jitter for a
// downstream-transient failure, such as a momentarily locked SQLite file.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns a general-purpose backoff for WithRetry. The
// batch writer does not retry flushes itself.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// WithRetry calls fn up to cfg.MaxAttempts times, waiting an exponentially
// increasing, jittered delay between attempts. The jitter is drawn from
// math/rand; limiter, when non-nil, is waited on before every attempt so
// the pacing composes with any external rate-limiting policy applied to the
// same limiter.
func WithRetry(ctx context.Context, cfg RetryConfig, limiter *rate.Limiter, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("store: retry rate limit wait: %w", err)
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay/2+1)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("store: exhausted %d retries: %w", cfg.MaxAttempts, lastErr)
}

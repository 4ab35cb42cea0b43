// Package retry provides a reusable retry mechanism with exponential backoff,
// shared by adapters that talk to external services.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retry attempts. Zero means the
	// operation runs once with no retries.
	MaxRetries int

	// InitialBackoff is the backoff duration before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to the backoff after each retry.
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to each wait to avoid thundering herds.
	Jitter bool

	// IsRetryable decides whether an error is worth retrying.
	// A nil func retries every error.
	IsRetryable func(error) bool

	// OnRetry is called before each retry attempt, for logging or metrics.
	// attempt is 1-indexed.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c *Config) applyDefaults() {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 100 * time.Millisecond
	}
}

// Do executes fn, retrying on retryable errors until it succeeds or the
// attempts are exhausted. The function always runs at least once.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	cfg.applyDefaults()
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(backoff)))
			}

			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, wait)
			}

			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
			case <-time.After(wait):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.IsRetryable != nil && !cfg.IsRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// DoVoid is like Do but for functions that don't return a value.
func DoVoid(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

package lifecycle

import (
	"context"
	"time"
)

// RetryConfig controls RetryWithBackoff. Zero values fall back to defaults.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// RetryWithBackoff runs op up to cfg.MaxAttempts times, doubling the delay
// between attempts. It retries only while isRetryable(err) is true, so call
// sites against the ledger indexer can retry not-yet-synced responses
// without duplicating bespoke loops.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	if isRetryable == nil {
		isRetryable = IsTransient
	}

	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

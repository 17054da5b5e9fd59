package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	t.Run("recovers from transient errors", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, IsTransient, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("indexer behind head: %w", ErrTransient)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		permanent := errors.New("bad request")
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, IsTransient, func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, IsTransient, func(ctx context.Context) error {
			calls++
			return ErrTransient
		})
		assert.ErrorIs(t, err, ErrTransient)
		assert.Equal(t, cfg.MaxAttempts, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}, IsTransient, func(ctx context.Context) error {
			calls++
			cancel()
			return ErrTransient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("defaults applied", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), RetryConfig{BaseDelay: time.Microsecond}, nil, func(ctx context.Context) error {
			calls++
			return ErrTransient
		})
		assert.ErrorIs(t, err, ErrTransient)
		assert.Equal(t, 3, calls, "default is three attempts")
	})
}

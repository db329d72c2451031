package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/rewardloop/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(serializationFailure()))
	assert.True(t, isRetryable(&pq.Error{Code: "40P01"}))
	assert.True(t, isRetryable(&pq.Error{Code: "55P03"}))
	assert.True(t, isRetryable(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})))
	assert.True(t, isRetryable(driver.ErrBadConn))
	assert.False(t, isRetryable(&pq.Error{Code: "42P01"}))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(nil))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries once then succeeds", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", func() error {
			calls++
			if calls == 1 {
				return serializationFailure()
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("surfaces persistence error after the retry", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", func() error {
			calls++
			return serializationFailure()
		})
		assert.Equal(t, 2, calls)

		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "test", perr.Op)
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", func() error {
			calls++
			return errors.New("disk full")
		})
		assert.Equal(t, 1, calls)
		assert.ErrorAs(t, err, new(*PersistenceError))
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", func() error {
			calls++
			return fmt.Errorf("reward 3: %w", ErrNotFound)
		})
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, errors.As(err, new(*PersistenceError)))
	})

	t.Run("configuration errors pass through", func(t *testing.T) {
		err := withRetry(ctx, "test", func() error {
			return &config.ConfigurationError{LimitType: "x"}
		})
		assert.ErrorAs(t, err, new(*config.ConfigurationError))
	})

	t.Run("no retry after cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		_ = withRetry(cctx, "test", func() error {
			calls++
			return serializationFailure()
		})
		assert.Equal(t, 1, calls)
	})
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Run("single successful try", func(t *testing.T) {
		runs := 0

		err := Incremental(context.Background(), 2*time.Millisecond, 5, func(_ context.Context, attempt int) error {
			runs++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, runs)
	})

	t.Run("success from the third time", func(t *testing.T) {
		runs := 0

		err := Incremental(context.Background(), 2*time.Millisecond, 4, func(_ context.Context, attempt int) error {
			runs++
			if attempt < 3 {
				return Retryable(errors.New("attempt failed"), attempt)
			}

			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, runs)
	})

	t.Run("fails when attempt limit is exhausted", func(t *testing.T) {
		runs := 0

		err := Incremental(context.Background(), 2*time.Millisecond, 4, func(_ context.Context, attempt int) error {
			runs++
			return Retryable(errors.New("attempt failed"), attempt)
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Contains(t, err.Error(), "attempt failed")
		assert.Equal(t, 4, runs)
	})

	t.Run("fails if the error is not retryable", func(t *testing.T) {
		runs := 0
		cause := errors.New("some error")

		err := Incremental(context.Background(), 2*time.Millisecond, 4, func(_ context.Context, attempt int) error {
			runs++
			return cause
		})

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 1, runs)
	})

	t.Run("stops waiting when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		runs := 0

		err := Backoff{Step: time.Hour, MaxAttempts: 3}.Do(ctx, func(_ context.Context, attempt int) error {
			runs++
			cancel()
			return Retryable(errors.New("not yet"), attempt)
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, runs)
	})

	t.Run("delay grows by step and is capped", func(t *testing.T) {
		b := Backoff{Step: time.Second, Max: 3 * time.Second}
		assert.Equal(t, time.Second, b.delay(1))
		assert.Equal(t, 2*time.Second, b.delay(2))
		assert.Equal(t, 3*time.Second, b.delay(5))
	})
}

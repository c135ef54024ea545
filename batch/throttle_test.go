package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepFor(t *testing.T) {
	tt := []struct {
		name       string
		elapsed    time.Duration
		loadFactor float64
		expected   time.Duration
	}{
		{name: "full load never sleeps", elapsed: time.Second, loadFactor: 1, expected: 0},
		{name: "half load sleeps as long as it worked", elapsed: time.Second, loadFactor: 0.5, expected: time.Second},
		{name: "quarter load sleeps three times as long", elapsed: time.Second, loadFactor: 0.25, expected: 3 * time.Second},
		{name: "no work no sleep", elapsed: 0, loadFactor: 0.1, expected: 0},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SleepFor(tc.elapsed, tc.loadFactor))
		})
	}
}

func TestRunThenSleep(t *testing.T) {
	t.Run("it rejects load factors outside of (0,1]", func(t *testing.T) {
		for _, lf := range []float64{0, -0.5, 1.01} {
			err := RunThenSleep(context.Background(), clock.NewMock(), lf, func(context.Context) error { return nil })
			assert.ErrorIs(t, err, ErrInvalidLoadFactor)
		}
	})

	t.Run("it does not wait at full load", func(t *testing.T) {
		mock := clock.NewMock()
		ctx, cancel := context.WithCancel(context.Background())

		err := RunThenSleep(ctx, mock, 1, func(context.Context) error {
			mock.Add(time.Minute)
			cancel()
			return nil
		})

		assert.NoError(t, err)
	})

	t.Run("it waits after work at partial load", func(t *testing.T) {
		mock := clock.NewMock()
		ctx, cancel := context.WithCancel(context.Background())

		err := RunThenSleep(ctx, mock, 0.5, func(context.Context) error {
			mock.Add(time.Minute)
			cancel()
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("it returns the error of the work unchanged", func(t *testing.T) {
		cause := errors.New("boom")
		err := RunThenSleep(context.Background(), clock.NewMock(), 0.5, func(context.Context) error {
			return cause
		})

		require.Error(t, err)
		assert.Same(t, cause, err)
	})
}

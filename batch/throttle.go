package batch

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// DefaultLoadFactor leaves the database idle half of the time
const DefaultLoadFactor = 0.5

var ErrInvalidLoadFactor = errors.New("invalid load factor: must be in (0,1]")

func ValidateLoadFactor(loadFactor float64) error {
	if loadFactor <= 0 || loadFactor > 1 {
		return errors.Wrapf(ErrInvalidLoadFactor, "%v", loadFactor)
	}
	return nil
}

// SleepFor returns how long to rest after working for elapsed so that work
// takes loadFactor of the total time
func SleepFor(elapsed time.Duration, loadFactor float64) time.Duration {
	if loadFactor >= 1 || elapsed <= 0 {
		return 0
	}

	return time.Duration(float64(elapsed) * (1/loadFactor - 1))
}

// RunThenSleep runs f and then sleeps in proportion to the time f took
func RunThenSleep(ctx context.Context, clk clock.Clock, loadFactor float64, f func(ctx context.Context) error) error {
	if err := ValidateLoadFactor(loadFactor); err != nil {
		return err
	}

	if clk == nil {
		clk = clock.New()
	}

	start := clk.Now()
	if err := f(ctx); err != nil {
		return err
	}

	d := SleepFor(clk.Now().Sub(start), loadFactor)
	if d <= 0 {
		return nil
	}

	timer := clk.Timer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

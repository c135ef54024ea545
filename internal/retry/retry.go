package retry

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Callable is retried only while it returns errors created with Retryable
type Callable func(ctx context.Context, attempt int) error

type retryableError struct {
	error
	attempt int
}

func (e *retryableError) Unwrap() error {
	return e.error
}

func Retryable(err error, attempt int) error {
	if err == nil {
		return nil
	}
	return &retryableError{error: err, attempt: attempt}
}

func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Backoff describes the delay between attempts: Step is added after every
// failed attempt and the delay never grows above Max when Max is set
type Backoff struct {
	Step        time.Duration
	Max         time.Duration
	MaxAttempts int
	Clock       clock.Clock
}

func (b Backoff) delay(attempt int) time.Duration {
	d := time.Duration(attempt) * b.Step
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) Do(ctx context.Context, cb Callable) error {
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}

	var last error
	for attempt := 1; b.MaxAttempts == 0 || attempt <= b.MaxAttempts; attempt++ {
		err := cb(ctx, attempt)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		last = err

		timer := clk.Timer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "gave up after %d attempts, last error: %v", attempt, last)
		case <-timer.C:
		}
	}

	return errors.Wrapf(ErrTooManyAttempts, "%d attempts, last error: %v", b.MaxAttempts, last)
}

// Incremental retries cb waiting one more step after every failed attempt
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, cb Callable) error {
	return Backoff{Step: step, MaxAttempts: maxAttempts}.Do(ctx, cb)
}

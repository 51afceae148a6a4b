package generation

import (
	"context"
	"fmt"
	"time"

	"autopilot/config"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper backed by a timer
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy bounds retries of rate-limited provider calls. Only errors
// classified by IsRateLimit are retried; everything else is returned as is.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	HintBuffer   time.Duration
	Sleep        Sleeper

	// OnRetry is called before each wait
	OnRetry func(op string, attempt int, wait time.Duration, err error)
}

// DefaultRetryPolicy returns 3 attempts, a 2s initial delay doubling each time
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  config.DefaultMaxAttempts,
		InitialDelay: config.InitialRetryDelay,
		Factor:       config.RetryBackoffFactor,
		HintBuffer:   config.RetryHintBuffer,
		Sleep:        SleepContext,
	}
}

// WithMaxAttempts returns a copy of p with a different attempt budget
func (p RetryPolicy) WithMaxAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return SleepContext(ctx, d)
	}
	return p.Sleep(ctx, d)
}

// Retry runs fn until it succeeds, fails with a non rate-limit error, or the
// attempt budget is spent. A provider "retry in N s" hint wins over the
// current backoff delay; otherwise the delay grows by Factor after each wait.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	delay := p.InitialDelay

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || !IsRateLimit(err) {
			return zero, err
		}

		var wait time.Duration
		if hint, ok := RetryAfter(err); ok {
			wait = hint + p.HintBuffer
		} else {
			wait = delay
			delay = time.Duration(float64(delay) * factor)
		}

		if p.OnRetry != nil {
			p.OnRetry(op, attempt, wait, err)
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return zero, fmt.Errorf("%s: retry wait interrupted: %w", op, serr)
		}
	}
}

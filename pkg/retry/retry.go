package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// NonRetryableError marks a failure that retrying cannot fix. The loop
// returns it as-is after the first occurrence.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

// Unwrap exposes the wrapped failure.
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable marks err as terminal for Do. A nil err stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries the terminal marker anywhere
// in its chain.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config shapes the backoff schedule. The zero value normalizes to a
// single attempt with the default delays, so a caller that wants retries
// must say how many.
type Config struct {
	// MaxAttempts is the total number of tries, the first one included.
	MaxAttempts int
	// InitialDelay is the sleep after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the growing sleep.
	MaxDelay time.Duration
	// Multiplier scales the sleep after every failed attempt.
	Multiplier float64
	// AddJitter stretches each sleep by up to 25% so callers sharing a
	// failing resource do not retry in lockstep.
	AddJitter bool
	// OnRetry runs after each failed attempt that will be retried, before
	// the sleep. Callers use it to record attempt history.
	OnRetry func(attempt int, err error, delay time.Duration)
}

const (
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultMultiplier   = 2.0

	// multiplierCeiling keeps a misconfigured multiplier from overflowing
	// the delay arithmetic in one step.
	multiplierCeiling = 1000
)

// normalized fills unset or out-of-range fields with the defaults.
func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	switch {
	case c.Multiplier <= 0:
		c.Multiplier = defaultMultiplier
	case c.Multiplier > multiplierCeiling:
		c.Multiplier = multiplierCeiling
	}
	return c
}

// DoWithResult runs fn until it succeeds, returns a non-retryable error,
// the context ends, or MaxAttempts failures have accumulated. The final
// error wraps the last attempt's failure, so errors.Is and errors.As see
// through it.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	cfg = cfg.normalized()
	delay := cfg.InitialDelay

	var (
		zero T
		last error
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("attempt %d not started: %w", attempt, err)
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		last = err
		if IsNonRetryable(last) {
			return zero, last
		}
		if attempt == cfg.MaxAttempts {
			return zero, fmt.Errorf("%d attempt(s) failed: %w", cfg.MaxAttempts, last)
		}

		sleep := delay
		if cfg.AddJitter {
			sleep += rand.N(delay/4 + 1)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, last, sleep)
		}
		if err := sleepCtx(ctx, sleep); err != nil {
			return zero, fmt.Errorf("backoff before attempt %d interrupted: %w (last failure: %w)", attempt+1, err, last)
		}
		delay = nextDelay(delay, cfg)
	}
}

// Do is DoWithResult for operations without a value.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// nextDelay grows the delay by the multiplier, capped at MaxDelay. The
// comparison happens in float64 so an overflowing product still caps.
func nextDelay(delay time.Duration, cfg Config) time.Duration {
	next := float64(delay) * cfg.Multiplier
	if next > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(next)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/metrics"
)

// RetryPolicy bounds exponential backoff for idempotent vehicle calls.
type RetryPolicy struct {
	Attempts   int           // total tries including the first (default: 5)
	Initial    time.Duration // first backoff (default: 200ms)
	Max        time.Duration // backoff ceiling (default: 5s)
	Multiplier float64       // growth per attempt (default: 2)
}

// DefaultRetryPolicy returns the reference policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   5,
		Initial:    200 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}
}

// Validate rejects policies that would never try or never wait.
func (p RetryPolicy) Validate() error {
	if p.Attempts < 1 {
		return flight.InvalidConfigf("retry attempts must be at least 1, got %d", p.Attempts)
	}
	if p.Initial < 0 || p.Max < p.Initial {
		return flight.InvalidConfigf("retry backoff must satisfy 0 <= initial (%s) <= max (%s)", p.Initial, p.Max)
	}
	if p.Multiplier < 1 {
		return flight.InvalidConfigf("retry multiplier must be at least 1, got %g", p.Multiplier)
	}
	return nil
}

// backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	return time.Duration(d)
}

// retrier runs idempotent vehicle calls under a RetryPolicy.
type retrier struct {
	policy RetryPolicy
	clock  Clock
	logger *slog.Logger
}

// do calls fn until it succeeds, the attempts run out or ctx is done. The
// final error wraps flight.ErrTelemetryUnavailable.
func (r *retrier) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.policy.Attempts {
			break
		}

		wait := r.policy.backoff(attempt)
		metrics.IncTelemetryRetry(op)
		r.logger.Warn("vehicle call failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if serr := r.clock.Sleep(ctx, wait); serr != nil {
			return serr
		}
	}

	metrics.IncTelemetryFailure(op)
	if errors.Is(err, flight.ErrTelemetryUnavailable) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, r.policy.Attempts, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, r.policy.Attempts, flight.ErrTelemetryUnavailable, err)
}

// once calls fn a single time, for operations that must not be repeated.
func (r *retrier) once(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.IncTelemetryFailure(op)
		if errors.Is(err, flight.ErrTelemetryUnavailable) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w: %w", op, flight.ErrTelemetryUnavailable, err)
	}
	return nil
}

// Package fetch holds the resilient-fetch primitives shared by the metadata
// providers, the image loader and the short-link resolver: a sequential
// retry loop with exponential backoff and a lazily-expiring TTL cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy describes how an operation is retried. It is a plain value; the
// same Policy can drive any number of concurrent Retry calls.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultPolicy returns 3 attempts, 1s initial delay, 10s cap, factor 2.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}
}

// Validate reports whether p is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if p.BackoffFactor <= 1 {
		return fmt.Errorf("backoff factor must be greater than 1, got %g", p.BackoffFactor)
	}
	return nil
}

// NextDelay returns the wait that follows prev: min(prev*factor, max).
// The first wait of a Retry call is NextDelay(InitialDelay).
func (p Policy) NextDelay(prev time.Duration) time.Duration {
	next := time.Duration(math.Round(float64(prev) * p.BackoffFactor))
	if p.MaxDelay > 0 && next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

// Delay returns the wait before attempt number attempt+1, where attempt is
// the 1-based number of the attempt that just failed.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = p.NextDelay(d)
	}
	return d
}

// Retry invokes op until it succeeds, returns a permanent error, or
// p.MaxAttempts attempts have failed. Attempts never overlap. Cancelling ctx
// aborts both a pending sleep and any further attempt.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, fmt.Errorf("invalid retry policy: %w", err)
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry canceled after %d attempts: %w", attempt-1, err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		delay = p.NextDelay(delay)
		if err := sleepWithContext(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry canceled after %d attempts: %w", attempt, err)
		}
	}

	return zero, &RetryExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

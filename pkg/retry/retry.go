// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nardis556/ikon-loadGenerator/pkg/util"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

type Policy struct {
	Attempts int
	Delay    time.Duration
	Clock    util.Clock
	// Retryable filters errors worth another attempt. Nil retries all.
	Retryable func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, the attempts run out, a non-retryable
// error is returned, or ctx is done.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = util.RealClock{}
	}

	var last error
	for i := 1; i <= attempts; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		last = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if i == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i, err)
		}
		if err := util.Sleep(ctx, clock, p.Delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

package util

import (
	"context"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// Sleep blocks for d on the given clock or until ctx is done.
// A non-positive duration returns immediately.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

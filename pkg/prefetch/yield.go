package prefetch

import (
	"context"
	"time"
)

// Yielder gives other work a chance to run before the scheduler continues.
// Yield returns early with ctx's error when ctx is done, and never waits
// longer than max.
type Yielder interface {
	Yield(ctx context.Context, max time.Duration) error
}

// SleepYielder waits the full duration.
type SleepYielder struct{}

// Yield sleeps for max.
func (SleepYielder) Yield(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(max)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

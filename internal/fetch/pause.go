package fetch

import (
	"context"
	"time"
)

// pauseFunc is how engine components sleep; tests substitute it to run fast.
type pauseFunc func(ctx context.Context, delay time.Duration) error

// pause blocks for delay or until ctx is done, whichever comes first.
func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
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

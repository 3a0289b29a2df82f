package usecases

import (
	"context"
	"math/rand"
	"time"
)

// PauseFunc blocks for a duration in [min, max) or until ctx is done.
type PauseFunc func(ctx context.Context, min, max time.Duration) error

// JitterPause spaces out UI actions by a random amount so the form is not
// filled at machine speed.
func JitterPause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
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

// NoPause returns immediately unless ctx is already done.
func NoPause(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}

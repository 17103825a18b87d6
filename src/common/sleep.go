package common

import (
	"context"
	"time"
)

// Sleep pauses for d unless the context is canceled first, in which case it
// returns the context's error. Loops use it between iterations so they react
// to cancellation without cutting an in-flight action short.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

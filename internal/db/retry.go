package db

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/metalagman/tm/internal/task"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = time.Second
	retryDeadline  = 5 * time.Second
)

// WithRetry runs fn, retrying with jittered exponential backoff while it
// reports task.ErrStoreBusy. All other errors return immediately. After the
// retry deadline the last busy error surfaces to the caller.
func WithRetry(ctx context.Context, fn func(context.Context) error) error {
	deadline := time.Now().Add(retryDeadline)
	delay := retryBaseDelay
	for {
		err := fn(ctx)
		if err == nil || !errors.Is(err, task.ErrStoreBusy) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

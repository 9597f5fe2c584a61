package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/task"
)

func TestWithRetrySucceedsAfterBusy(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("write: %w", task.ErrStoreBusy)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls, "only busy errors retry")

	calls = 0
	err = WithRetry(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("read: %w", task.ErrStoreCorrupt)
	})
	assert.ErrorIs(t, err, task.ErrStoreCorrupt)
	assert.Equal(t, 1, calls, "corruption never retries")
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := WithRetry(ctx, func(context.Context) error {
		return fmt.Errorf("write: %w", task.ErrStoreBusy)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryAcquireLock(t *testing.T) {
	dir := t.TempDir()

	first, ok, err := TryAcquireLock(dir, "migrate")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = TryAcquireLock(dir, "migrate")
	require.NoError(t, err)
	assert.False(t, ok, "second holder is refused")

	_, ok, err = TryAcquireLock(dir, "other")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per name")

	require.NoError(t, first.Release())
	_, ok, err = TryAcquireLock(dir, "migrate")
	require.NoError(t, err)
	assert.True(t, ok, "released lock can be reacquired")
}

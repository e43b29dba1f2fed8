package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runQueueContract checks behavior every Queue must share. q must be empty.
func runQueueContract(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	first := NewTask("greeting", map[string]any{"name": "Ada"})
	second := NewTask("greeting", nil)
	second.StartNode = "shout"
	second.Attempts = 2

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))
	require.Equal(t, 2, q.Len())

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "greeting", got.Flow)
	require.Equal(t, map[string]any{"name": "Ada"}, got.Input)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, "shout", got.StartNode)
	require.Equal(t, 2, got.Attempts)
	require.Zero(t, q.Len())

	// Deferred tasks wait for NotBefore even when queued first.
	later := NewTask("later", nil)
	later.NotBefore = time.Now().Add(300 * time.Millisecond)
	now := NewTask("now", nil)
	require.NoError(t, q.Enqueue(ctx, later))
	require.NoError(t, q.Enqueue(ctx, now))

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "now", got.Flow)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "later", got.Flow)
	require.False(t, time.Now().Before(later.NotBefore.Add(-50*time.Millisecond)))

	// Once both are due, the one with the earlier NotBefore goes first
	// regardless of insertion order.
	base := time.Now()
	dueSecond := NewTask("due-second", nil)
	dueSecond.NotBefore = base.Add(60 * time.Millisecond)
	dueFirst := NewTask("due-first", nil)
	dueFirst.NotBefore = base.Add(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, dueSecond))
	require.NoError(t, q.Enqueue(ctx, dueFirst))
	time.Sleep(120 * time.Millisecond)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "due-first", got.Flow)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "due-second", got.Flow)

	// Dequeue on an empty queue blocks until ctx is done.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

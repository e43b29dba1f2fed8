// Package taskqueue holds queued flow runs until a worker picks them up.
// Backends: in-memory, SQLite, PostgreSQL, Redis and MongoDB.
package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by bounded queues that cannot take another task.
var ErrQueueFull = errors.New("task queue full")

// Task is one queued run of a named flow.
type Task struct {
	ID        string         `json:"id"`
	Flow      string         `json:"flow"`
	StartNode string         `json:"start_node,omitempty"`
	Input     map[string]any `json:"input,omitempty"`

	// Attempts counts earlier failed runs of this task.
	Attempts int `json:"attempts"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// NotBefore is the earliest time the task may be dequeued. Zero means
	// immediately.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// NewTask returns a task with a fresh id.
func NewTask(flow string, input map[string]any) Task {
	return Task{
		ID:         uuid.NewString(),
		Flow:       flow,
		Input:      input,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Ready reports whether the task may run at now.
func (t Task) Ready(now time.Time) bool {
	return t.NotBefore.IsZero() || !t.NotBefore.After(now)
}

// Queue is a FIFO of tasks, ordered by NotBefore where backends support it.
type Queue interface {
	// Enqueue adds a task to the queue.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next ready task, blocking until one
	// is available or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of queued tasks.
	Len() int
}

// waitFor sleeps for d or until ctx is done.
func waitFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a bounded Queue held in process memory. It is safe for
// concurrent use.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []Task
	capacity int
	notify   chan struct{}
}

// NewInMemoryQueue creates a queue holding at most capacity tasks; <= 0
// means 1024.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{capacity: capacity, notify: make(chan struct{}, 1)}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.wake()
	return nil
}

// wake signals one waiting Dequeue.
func (q *InMemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.take(time.Now())
		if task != nil {
			return task, nil
		}

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
		case <-q.notify:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// take removes the ready task with the earliest NotBefore, oldest first on
// ties. Otherwise it returns how long until the earliest deferred task
// becomes ready, or 0 when the queue is empty.
func (q *InMemoryQueue) take(now time.Time) (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	var wait time.Duration
	for i, t := range q.tasks {
		if t.Ready(now) {
			if best < 0 || t.NotBefore.Before(q.tasks[best].NotBefore) {
				best = i
			}
			continue
		}
		if d := t.NotBefore.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}
	if best < 0 {
		return nil, wait
	}

	t := q.tasks[best]
	q.tasks = append(q.tasks[:best], q.tasks[best+1:]...)
	if len(q.tasks) > 0 {
		// pass the wakeup on to another waiter
		q.wake()
	}
	return &t, 0
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

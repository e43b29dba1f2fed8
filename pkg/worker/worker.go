package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/pocketflow"
	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/internal/taskqueue"
	"github.com/petrijr/pocketflow/pkg/api"
)

// ErrUnknownFlow is returned when a task names a flow the resolver does not
// know.
var ErrUnknownFlow = errors.New("unknown flow")

// Resolver looks up a flow by name.
type Resolver func(name string) (api.Flow, bool)

// Status is the lifecycle state of a queued run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is the record kept for one queued run.
type Run struct {
	ID        string         `json:"id"`
	Flow      string         `json:"flow"`
	Status    Status         `json:"status"`
	Attempts  int            `json:"attempts"`
	Result    map[string]any `json:"result,omitempty"`
	Store     map[string]any `json:"store,omitempty"`
	Error     string         `json:"error,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Config controls retries of failed runs.
type Config struct {
	// MaxAttempts is the total number of times a task is run. <= 0 means 1.
	MaxAttempts int

	// Backoff is the delay before the first retry, doubling per attempt.
	Backoff time.Duration

	// RunTimeout bounds a single attempt; 0 means no limit.
	RunTimeout time.Duration

	Runner *pocketflow.Runner
	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and runs the flows they name. Each run
// gets a fresh memory store seeded with the task input. Run records are
// kept in a separate store under "run:<id>".
type Worker struct {
	queue   taskqueue.Queue
	resolve Resolver
	runs    api.Store
	cfg     Config
}

// New creates a Worker that runs each task once.
func New(queue taskqueue.Queue, resolve Resolver, runs api.Store) *Worker {
	return NewWithConfig(queue, resolve, runs, Config{})
}

// NewWithConfig creates a Worker. A nil runs store means an in-memory one.
func NewWithConfig(queue taskqueue.Queue, resolve Resolver, runs api.Store, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Runner == nil {
		cfg.Runner = pocketflow.NewRunner()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if runs == nil {
		runs = persistence.NewInMemoryStore()
	}
	return &Worker{queue: queue, resolve: resolve, runs: runs, cfg: cfg}
}

func runKey(id string) string { return "run:" + id }

// Enqueue queues a run of the named flow and returns its initial record.
// startNode may be empty to use the flow's own start node.
func (w *Worker) Enqueue(ctx context.Context, flow, startNode string, input map[string]any) (Run, error) {
	return w.EnqueueAt(ctx, flow, startNode, input, time.Time{})
}

// EnqueueAt is Enqueue for a run that must not start before at.
func (w *Worker) EnqueueAt(ctx context.Context, flow, startNode string, input map[string]any, at time.Time) (Run, error) {
	if _, ok := w.resolve(flow); !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	task := taskqueue.NewTask(flow, input)
	task.StartNode = startNode
	task.NotBefore = at

	run := Run{ID: task.ID, Flow: flow, Status: StatusQueued}
	if err := w.save(ctx, &run); err != nil {
		return Run{}, err
	}
	if err := w.queue.Enqueue(ctx, task); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Status returns the record of a queued run.
func (w *Worker) Status(ctx context.Context, id string) (Run, bool, error) {
	return api.GetAs[Run](ctx, w.runs, runKey(id))
}

func (w *Worker) save(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	return w.runs.Set(ctx, runKey(run.ID), *run)
}

// ProcessOne pulls a single task from the queue and runs it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the Dequeue error.
//   - processed == true: a task was handled; err is the run error, if any.
//
// A failed run with attempts left is re-queued with backoff. A run cut short
// because ctx was cancelled goes back on the queue without using an attempt.
// Records and re-queues are written even after ctx is done.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	persist := context.WithoutCancel(ctx)
	run := Run{ID: task.ID, Flow: task.Flow, Status: StatusRunning, Attempts: task.Attempts + 1}
	if err := w.save(persist, &run); err != nil {
		return true, err
	}

	runErr := w.execute(ctx, task, &run)
	if runErr == nil {
		run.Status = StatusSucceeded
		return true, w.save(persist, &run)
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(runErr, ctxErr) {
		return true, w.requeueInterrupted(persist, task, &run, runErr)
	}

	run.Error = runErr.Error()
	run.Kind = api.KindName(runErr)
	if run.Attempts < w.cfg.MaxAttempts && !errors.Is(runErr, ErrUnknownFlow) {
		retry := *task
		retry.Attempts = run.Attempts
		retry.NotBefore = time.Now().Add(w.backoff(run.Attempts))
		if err := w.queue.Enqueue(persist, retry); err != nil {
			run.Status = StatusFailed
			return true, errors.Join(runErr, err, w.save(persist, &run))
		}
		run.Status = StatusRetrying
		w.cfg.Logger.Warn("worker: run failed, retrying",
			"run", run.ID, "flow", run.Flow, "attempt", run.Attempts, "error", runErr)
	} else {
		run.Status = StatusFailed
		w.cfg.Logger.Error("worker: run failed",
			"run", run.ID, "flow", run.Flow, "attempts", run.Attempts, "error", runErr)
	}
	if err := w.save(persist, &run); err != nil {
		return true, errors.Join(runErr, err)
	}
	return true, runErr
}

// requeueInterrupted puts a task back unchanged after the worker was
// stopped mid-run.
func (w *Worker) requeueInterrupted(ctx context.Context, task *taskqueue.Task, run *Run, runErr error) error {
	run.Attempts = task.Attempts
	run.Result, run.Store = nil, nil
	if err := w.queue.Enqueue(ctx, *task); err != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
		run.Kind = api.KindName(runErr)
		return errors.Join(runErr, err, w.save(ctx, run))
	}
	run.Status = StatusQueued
	w.cfg.Logger.Info("worker: run interrupted, re-queued", "run", run.ID, "flow", run.Flow)
	if err := w.save(ctx, run); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (w *Worker) execute(ctx context.Context, task *taskqueue.Task, run *Run) error {
	flow, ok := w.resolve(task.Flow)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFlow, task.Flow)
	}

	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	store := persistence.NewInMemoryStoreFrom(task.Input)
	res, err := w.cfg.Runner.Run(ctx, pocketflow.RunRequest{Flow: flow, Store: store, StartNode: task.StartNode})

	snapshot, snapErr := api.Snapshot(context.WithoutCancel(ctx), store)
	if snapErr == nil {
		run.Store = snapshot
	}
	if err != nil {
		return err
	}
	run.Result = res.Record()
	return nil
}

// backoff returns Backoff doubled for every attempt after the first.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.cfg.Backoff
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

// Run processes tasks with n concurrent loops until ctx is done. Failed
// runs are recorded, not returned.
func (w *Worker) Run(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			for {
				processed, err := w.ProcessOne(ctx)
				if ctx.Err() != nil {
					return nil
				}
				if !processed && err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

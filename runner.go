package pocketflow

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/pocketflow/pkg/api"
)

// DefaultConcurrency is the number of runs a Runner executes at once when
// not configured otherwise.
const DefaultConcurrency = 4

// RunRequest is one independent run: a flow, the store it runs against and
// an optional start node overriding the flow's own.
type RunRequest struct {
	Flow      api.Flow
	Store     api.Store
	StartNode string
}

// RunOutcome is the result of one RunRequest. Exactly one of Result and Err
// is set.
type RunOutcome struct {
	Request RunRequest
	Result  *api.ExecutionResult
	Err     error
}

// Runner executes independent runs concurrently.
//
// Runs share nothing but what their requests share: two requests pointing
// at the same store see each other's writes.
type Runner struct {
	concurrency int
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of runs in flight. n <= 0 means
// DefaultConcurrency.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = n }
}

// WithRunnerLogger sets the logger used to report failed runs.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner constructs a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes a single request synchronously.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*api.ExecutionResult, error) {
	if req.Flow == nil {
		return nil, errors.New("pocketflow: run request has no flow")
	}
	if req.Store == nil {
		return nil, errors.New("pocketflow: run request has no store")
	}
	if req.StartNode != "" {
		return req.Flow.ExecuteFrom(ctx, req.Store, req.StartNode)
	}
	return req.Flow.Execute(ctx, req.Store)
}

// RunAll executes every request and returns one outcome per request in the
// same order. A failing run does not stop the others.
func (r *Runner) RunAll(ctx context.Context, reqs ...RunRequest) []RunOutcome {
	outcomes := make([]RunOutcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := r.Run(ctx, req)
			if err != nil {
				name := ""
				if req.Flow != nil {
					name = req.Flow.Name()
				}
				r.logger.WarnContext(ctx, "run failed", "flow", name, "error", err)
			}
			outcomes[i] = RunOutcome{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait() // errors are embedded in outcomes, not returned

	return outcomes
}

package engine

import (
	"context"
	"time"

	"github.com/petrijr/pocketflow/pkg/api"
)

// RunNode runs one prep -> exec (with retry) -> post turn of node against
// store, outside of any flow.
func RunNode(ctx context.Context, node api.Node, store api.Store) (api.Action, error) {
	return runNode(ctx, node.Name(), node, store, api.RunInfo{Depth: api.FlowDepthFromContext(ctx)}, api.NoopObserver{})
}

func runNode(
	ctx context.Context,
	id string,
	node api.Node,
	store api.Store,
	run api.RunInfo,
	observer api.Observer,
) (api.Action, error) {
	ec := api.NewExecutionContext(node.MaxRetries(), node.RetryDelay())
	ec.SetMetadata(api.FlowDepthKey, api.FlowDepthFromContext(ctx))

	prep, err := node.Prep(ctx, store, ec)
	if err != nil {
		return api.Action{}, &api.NodeError{Node: id, Phase: api.PhasePrep, Err: err}
	}

	exec, err := execWithRetry(ctx, id, node, prep, ec, run, observer)
	if err != nil {
		return api.Action{}, &api.NodeError{Node: id, Phase: api.PhaseExec, Err: err}
	}

	action, err := node.Post(ctx, store, prep, exec, ec)
	if err != nil {
		return api.Action{}, &api.NodeError{Node: id, Phase: api.PhasePost, Err: err}
	}
	return action, nil
}

// execWithRetry calls Exec until it succeeds or the node's attempts are
// used up, then hands the last error to ExecFallback.
func execWithRetry(
	ctx context.Context,
	id string,
	node api.Node,
	prep any,
	ec *api.ExecutionContext,
	run api.RunInfo,
	observer api.Observer,
) (any, error) {
	policy := api.RetryPolicy{MaxRetries: ec.MaxRetries, Delay: ec.RetryDelay}
	if p, ok := node.(api.RetryPolicyProvider); ok {
		custom := p.RetryPolicy()
		policy.Multiplier = custom.Multiplier
		policy.MaxDelay = custom.MaxDelay
	}

	for {
		out, err := node.Exec(ctx, prep, ec)
		if err == nil {
			return out, nil
		}
		if !ec.CanRetry() {
			return node.ExecFallback(ctx, prep, err, ec)
		}

		observer.OnNodeRetry(ctx, run, id, ec.Attempt(), err)

		ec.NextRetry()
		ec.RetryDelay = policy.DelayFor(ec.CurrentRetry)
		if err := sleep(ctx, ec.RetryDelay); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

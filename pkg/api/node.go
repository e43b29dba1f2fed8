package api

import (
	"context"
	"time"
)

// Node is a unit of work run by a flow in three phases.
//
// Prep and Post receive the store; Exec does not and may be called more than
// once with the same prep value, so it must not mutate it. Only Exec is
// retried. When attempts are exhausted the engine calls ExecFallback with
// the last error.
type Node interface {
	Name() string
	// MaxRetries returns the number of Exec attempts, including the first.
	MaxRetries() int
	RetryDelay() time.Duration

	Prep(ctx context.Context, store Store, ec *ExecutionContext) (any, error)
	Exec(ctx context.Context, prep any, ec *ExecutionContext) (any, error)
	ExecFallback(ctx context.Context, prep any, err error, ec *ExecutionContext) (any, error)
	Post(ctx context.Context, store Store, prep, exec any, ec *ExecutionContext) (Action, error)
}

// RetryPolicyProvider is implemented by nodes that want backoff growth
// between Exec attempts instead of a constant RetryDelay.
type RetryPolicyProvider interface {
	RetryPolicy() RetryPolicy
}

// RetryPolicy describes how a node's Exec phase is retried.
type RetryPolicy struct {
	// MaxRetries counts attempts including the first, so 3 means one call
	// plus two retries. Values below 1 mean 1. This is one fewer attempt than
	// a "retries after the first call" count would give for the same number.
	MaxRetries int

	// Delay is waited before the first retry.
	Delay time.Duration

	// Multiplier grows the delay after each retry. Values <= 1 keep it
	// constant.
	Multiplier float64

	// MaxDelay caps the delay; 0 means no cap.
	MaxDelay time.Duration
}

// Attempts returns MaxRetries clamped to at least 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// DelayFor returns the wait before retry number retry (1-based).
func (p RetryPolicy) DelayFor(retry int) time.Duration {
	delay := p.Delay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < retry && p.Multiplier > 1; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// BaseNode provides default implementations of the Node contract. Embed it
// and override the phases you need:
//
//	type greet struct{ api.BaseNode }
//
//	func (greet) Post(ctx context.Context, s api.Store, _, _ any, _ *api.ExecutionContext) (api.Action, error) {
//	    return api.Simple("end"), s.Set(ctx, "greeting", "hello")
//	}
type BaseNode struct {
	NodeName string
	Retry    RetryPolicy
}

func (b BaseNode) Name() string {
	if b.NodeName == "" {
		return "node"
	}
	return b.NodeName
}

func (b BaseNode) MaxRetries() int           { return b.Retry.Attempts() }
func (b BaseNode) RetryDelay() time.Duration { return b.Retry.Delay }
func (b BaseNode) RetryPolicy() RetryPolicy  { return b.Retry }

func (BaseNode) Prep(ctx context.Context, store Store, ec *ExecutionContext) (any, error) {
	return nil, nil
}

func (BaseNode) Exec(ctx context.Context, prep any, ec *ExecutionContext) (any, error) {
	return nil, nil
}

// ExecFallback re-raises err.
func (BaseNode) ExecFallback(ctx context.Context, prep any, err error, ec *ExecutionContext) (any, error) {
	return nil, err
}

func (BaseNode) Post(ctx context.Context, store Store, prep, exec any, ec *ExecutionContext) (Action, error) {
	return Simple("default"), nil
}

var _ Node = BaseNode{}

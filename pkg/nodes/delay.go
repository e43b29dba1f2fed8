package nodes

import (
	"context"
	"time"

	"github.com/petrijr/pocketflow/pkg/api"
)

// DelayNode waits for a fixed duration, or until ctx is done.
type DelayNode struct {
	api.BaseNode
	duration time.Duration
	action   api.Action
}

func NewDelayNode(d time.Duration, action api.Action, opts ...Option) *DelayNode {
	s := applyOptions("delay", opts)
	return &DelayNode{BaseNode: s.base(), duration: d, action: action}
}

func (n *DelayNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	timer := time.NewTimer(n.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

func (n *DelayNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	return n.action, nil
}

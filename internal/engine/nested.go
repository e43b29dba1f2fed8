package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/pocketflow/pkg/api"
)

// NestedResultKey is where a nested flow writes its result record unless
// configured otherwise.
const NestedResultKey = "nested_flow_result"

// FlowNode runs a whole flow as a single node of another flow.
type FlowNode struct {
	flow      api.Flow
	name      string
	resultKey string
	scoped    bool
}

var _ api.Node = (*FlowNode)(nil)

// FlowNodeOption configures a FlowNode.
type FlowNodeOption func(*FlowNode)

// WithNodeName overrides the node name reported to observers and errors.
func WithNodeName(name string) FlowNodeOption {
	return func(n *FlowNode) { n.name = name }
}

// WithResultKey stores the nested result record under key.
func WithResultKey(key string) FlowNodeOption {
	return func(n *FlowNode) { n.resultKey = key }
}

// WithExecutionScopedResult suffixes the result key with the execution id
// of the wrapper invocation, so repeated nested runs do not overwrite each
// other.
func WithExecutionScopedResult() FlowNodeOption {
	return func(n *FlowNode) { n.scoped = true }
}

// NewFlowNode wraps flow so it can be registered as a node.
func NewFlowNode(flow api.Flow, opts ...FlowNodeOption) *FlowNode {
	n := &FlowNode{
		flow:      flow,
		resultKey: NestedResultKey,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.name == "" {
		n.name = "flow"
		if flow.Name() != "" {
			n.name = "flow:" + flow.Name()
		}
	}
	return n
}

func (n *FlowNode) Name() string              { return n.name }
func (n *FlowNode) MaxRetries() int           { return 1 }
func (n *FlowNode) RetryDelay() time.Duration { return 0 }

// Prep validates the inner flow before anything runs.
func (n *FlowNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	if err := n.flow.Validate(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Exec does nothing; the inner flow needs the store, which only Post gets.
func (n *FlowNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	return nil, nil
}

func (n *FlowNode) ExecFallback(ctx context.Context, prep any, err error, ec *api.ExecutionContext) (any, error) {
	return nil, err
}

// Post runs the inner flow on the same store one level deeper, records its
// result and returns its final action.
func (n *FlowNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	depth := ec.FlowDepth() + 1
	if depth > api.MaxFlowDepth {
		return api.Action{}, api.NewInvalidConfiguration(
			"maximum flow nesting depth %d exceeded (depth %d)", api.MaxFlowDepth, depth)
	}

	res, err := n.flow.Execute(api.WithFlowDepth(ctx, depth), store)
	if err != nil {
		return api.Action{}, err
	}

	key := n.resultKey
	if n.scoped {
		key = fmt.Sprintf("%s_%s", n.resultKey, ec.ExecutionID)
	}
	if err := store.Set(ctx, key, res.Record()); err != nil {
		return api.Action{}, fmt.Errorf("store nested flow result: %w", err)
	}
	return res.FinalAction, nil
}

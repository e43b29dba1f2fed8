package pocketflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stepNode struct {
	BaseNode
	action string
	key    string
	runs   atomic.Int32
}

func newStep(name, action string) *stepNode {
	return &stepNode{BaseNode: BaseNode{NodeName: name}, action: action, key: name}
}

func (n *stepNode) Post(ctx context.Context, store Store, prep, exec any, ec *ExecutionContext) (Action, error) {
	n.runs.Add(1)
	if err := store.Set(ctx, n.key, true); err != nil {
		return Action{}, err
	}
	return Simple(n.action), nil
}

func TestFlowBuilder_BuildAndRun(t *testing.T) {
	flow := New("builder-sample").
		Node("start", newStep("start", "next")).
		Node("middle", newStep("middle", "done")).
		Route("start", "next", "middle").
		TerminalAction("done").
		Build()

	require.Equal(t, "builder-sample", flow.Name())
	require.NoError(t, flow.Validate())

	store := NewMemoryStore()
	res, err := flow.Execute(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, []string{"start", "middle"}, res.ExecutionPath)
	require.Equal(t, "done", res.FinalAction.Name())

	for _, k := range []string{"start", "middle"} {
		ok, err := store.ContainsKey(context.Background(), k)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestFlowBuilder_Configuration(t *testing.T) {
	b := New("cfg").
		StartNode("first").
		MaxSteps(12).
		DetectCycles(false).
		TerminalAction("stop").
		TerminalAction("stop")

	cfg := b.Node("first", newStep("first", "stop")).Build().Config()
	require.Equal(t, "first", cfg.StartNodeID)
	require.Equal(t, 12, cfg.MaxSteps)
	require.False(t, cfg.DetectCycles)
	require.Equal(t, []string{"end", "complete", "finish", "stop"}, cfg.TerminalActions)

	cfg = New("replace").TerminalActions("only").Build().Config()
	require.Equal(t, []string{"only"}, cfg.TerminalActions)

	cfg = New("defaults").MaxSteps(0).Build().Config()
	require.Equal(t, 1000, cfg.MaxSteps)
	require.Equal(t, "start", cfg.StartNodeID)
}

func TestFlowBuilder_ConditionalRoute(t *testing.T) {
	build := func() *Flow {
		return New("cond").
			Node("start", newStep("start", "check")).
			Node("big", newStep("big", "end")).
			Node("small", newStep("small", "end")).
			ConditionalRoute("start", "check", "big", NumericCompare("size", ">", 10)).
			Route("start", "check", "small").
			Build()
	}

	res, err := build().Execute(context.Background(), NewMemoryStoreFrom(map[string]any{"size": 11}))
	require.NoError(t, err)
	require.Equal(t, "big", res.LastNodeID)

	res, err = build().Execute(context.Background(), NewMemoryStoreFrom(map[string]any{"size": 3}))
	require.NoError(t, err)
	require.Equal(t, "small", res.LastNodeID)
}

func TestFlowBuilder_BuildDoesNotValidateOrRun(t *testing.T) {
	start := newStep("start", "go")
	flow := New("dangling").
		Node("start", start).
		Route("start", "go", "missing").
		Build()

	require.Zero(t, start.runs.Load())
	require.ErrorIs(t, flow.Validate(), ErrInvalidConfiguration)
	require.Panics(t, func() {
		New("dangling").Node("start", start).Route("start", "go", "missing").MustBuild()
	})
}

func TestFlowBuilder_PanicsOnBadNodes(t *testing.T) {
	require.Panics(t, func() { New("x").Node("", newStep("a", "end")) })
	require.Panics(t, func() { New("x").Node("a", nil) })
}

func TestFlowBuilder_Observer(t *testing.T) {
	metrics := &BasicMetrics{}
	flow := New("observed").
		Node("start", newStep("start", "end")).
		Observer(NewCompositeObserver(metrics, NewLoggingObserver(nil))).
		Build()

	_, err := flow.Execute(context.Background(), NewMemoryStore())
	require.NoError(t, err)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.FlowsCompleted)
	require.Equal(t, int64(1), snap.NodesCompleted)
}

func TestFlowBuilder_NestedFlow(t *testing.T) {
	inner := New("inner").
		Node("start", newStep("inner_start", "done")).
		TerminalActions("done").
		Build()

	outer := New("outer").
		Node("start", NewFlowNode(inner, WithResultKey("inner_result"))).
		Node("after", newStep("after", "end")).
		Route("start", "done", "after").
		Build()

	store := NewMemoryStore()
	res, err := outer.Execute(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, "after", res.LastNodeID)

	record, ok, err := GetAs[map[string]any](context.Background(), store, "inner_result")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "start", record["last_node_id"])

	ok, _ = store.ContainsKey(context.Background(), "inner_start")
	require.True(t, ok, "nested flow shares the outer store")
}

type countingExec struct {
	BaseNode
	calls atomic.Int32
	fails int32
}

func (n *countingExec) Exec(ctx context.Context, prep any, ec *ExecutionContext) (any, error) {
	if n.calls.Add(1) <= n.fails {
		return nil, errors.New("not yet")
	}
	return "ok", nil
}

func (n *countingExec) Post(ctx context.Context, store Store, prep, exec any, ec *ExecutionContext) (Action, error) {
	return Simple("end"), nil
}

func TestRunNode_WithRetryBuilder(t *testing.T) {
	node := &countingExec{BaseNode: BaseNode{Retry: Retry(3).Immediate().Policy()}, fails: 2}

	action, err := RunNode(context.Background(), node, NewMemoryStore())
	require.NoError(t, err)
	require.Equal(t, "end", action.Name())
	require.Equal(t, int32(3), node.calls.Load())
}

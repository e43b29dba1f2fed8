package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Attempts(t *testing.T) {
	require.Equal(t, 1, RetryPolicy{}.Attempts())
	require.Equal(t, 1, RetryPolicy{MaxRetries: -3}.Attempts())
	require.Equal(t, 4, RetryPolicy{MaxRetries: 4}.Attempts())
}

func TestRetryPolicy_DelayFor(t *testing.T) {
	constant := RetryPolicy{Delay: 10 * time.Millisecond}
	require.Equal(t, 10*time.Millisecond, constant.DelayFor(1))
	require.Equal(t, 10*time.Millisecond, constant.DelayFor(4))

	backoff := RetryPolicy{Delay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	require.Equal(t, 10*time.Millisecond, backoff.DelayFor(1))
	require.Equal(t, 20*time.Millisecond, backoff.DelayFor(2))
	require.Equal(t, 40*time.Millisecond, backoff.DelayFor(3))
	require.Equal(t, 50*time.Millisecond, backoff.DelayFor(4))
	require.Equal(t, 50*time.Millisecond, backoff.DelayFor(10))

	require.Zero(t, RetryPolicy{Multiplier: 3}.DelayFor(2))
}

func TestBaseNode_Defaults(t *testing.T) {
	ctx := context.Background()
	n := BaseNode{}
	ec := NewExecutionContext(n.MaxRetries(), n.RetryDelay())

	require.Equal(t, "node", n.Name())
	require.Equal(t, 1, n.MaxRetries())
	require.Zero(t, n.RetryDelay())

	prep, err := n.Prep(ctx, newMapStore(nil), ec)
	require.NoError(t, err)
	require.Nil(t, prep)

	out, err := n.Exec(ctx, prep, ec)
	require.NoError(t, err)
	require.Nil(t, out)

	cause := errors.New("exec failed")
	_, err = n.ExecFallback(ctx, prep, cause, ec)
	require.ErrorIs(t, err, cause)

	action, err := n.Post(ctx, newMapStore(nil), prep, out, ec)
	require.NoError(t, err)
	require.Equal(t, "default", action.Name())
}

func TestExecutionContext_Retries(t *testing.T) {
	ec := NewExecutionContext(3, time.Second)
	require.NotEmpty(t, ec.ExecutionID)
	require.Equal(t, 1, ec.Attempt())

	require.True(t, ec.CanRetry())
	ec.NextRetry()
	require.True(t, ec.CanRetry())
	ec.NextRetry()
	require.False(t, ec.CanRetry())
	require.Equal(t, 3, ec.Attempt())

	single := NewExecutionContext(0, 0)
	require.Equal(t, 1, single.MaxRetries)
	require.False(t, single.CanRetry())

	require.NotEqual(t, ec.ExecutionID, single.ExecutionID)
}

func TestExecutionContext_Metadata(t *testing.T) {
	ec := NewExecutionContext(1, 0)
	require.Zero(t, ec.FlowDepth())

	ec.SetMetadata(FlowDepthKey, 3)
	require.Equal(t, 3, ec.FlowDepth())
	ec.SetMetadata(FlowDepthKey, 4.0)
	require.Equal(t, 4, ec.FlowDepth())

	clone := ec.Clone()
	clone.SetMetadata("extra", true)
	_, ok := ec.GetMetadata("extra")
	require.False(t, ok)

	v, ok := ec.RemoveMetadata(FlowDepthKey)
	require.True(t, ok)
	require.Equal(t, 4.0, v)
	require.Zero(t, ec.FlowDepth())
}

func TestFlowDepthContext(t *testing.T) {
	ctx := context.Background()
	require.Zero(t, FlowDepthFromContext(ctx))
	require.Equal(t, 2, FlowDepthFromContext(WithFlowDepth(ctx, 2)))
}

func TestFlowConfig(t *testing.T) {
	cfg := DefaultFlowConfig()
	require.Equal(t, "start", cfg.StartNodeID)
	require.Equal(t, 1000, cfg.MaxSteps)
	require.True(t, cfg.DetectCycles)
	for _, a := range []string{"end", "complete", "finish"} {
		require.True(t, cfg.IsTerminal(a))
	}
	require.False(t, cfg.IsTerminal("next"))

	cfg.TerminalActions[0] = "changed"
	require.True(t, DefaultFlowConfig().IsTerminal("end"))
}

func TestGetAs(t *testing.T) {
	ctx := context.Background()
	store := newMapStore(map[string]any{
		"n":      float64(3),
		"record": map[string]any{"name": "x", "count": float64(2)},
		"text":   "hello",
	})

	n, ok, err := GetAs[int](ctx, store, "n")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, n)

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	r, ok, err := GetAs[record](ctx, store, "record")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "x", Count: 2}, r)

	_, ok, err = GetAs[string](ctx, store, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = GetAs[int](ctx, store, "text")
	require.Error(t, err)
	require.True(t, ok)
}

func TestSnapshot(t *testing.T) {
	store := newMapStore(map[string]any{"a": 1, "b": "two"})
	snap, err := Snapshot(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1, "b": "two"}, snap)

	snap["c"] = 3
	ok, _ := store.ContainsKey(context.Background(), "c")
	require.False(t, ok)
}

func TestExecutionResult_Record(t *testing.T) {
	res := &ExecutionResult{
		FinalAction:   Parameterized("done", map[string]any{"x": 1}),
		LastNodeID:    "last",
		StepsExecuted: 2,
		Success:       true,
		ExecutionPath: []string{"first", "last"},
	}
	require.Equal(t, map[string]any{
		"final_action":   "done",
		"last_node_id":   "last",
		"steps_executed": 2,
		"success":        true,
		"execution_path": []any{"first", "last"},
	}, res.Record())
}

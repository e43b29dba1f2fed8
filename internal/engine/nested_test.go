package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/pkg/api"
)

// nestedChain wraps a leaf flow in levels FlowNodes, each in its own flow.
func nestedChain(levels int) *Flow {
	current := NewFlow(Config{
		Name:  "leaf",
		Flow:  api.DefaultFlowConfig(),
		Nodes: map[string]api.Node{"start": newActionNode("leaf", "end")},
	})
	for i := 1; i <= levels; i++ {
		current = NewFlow(Config{
			Name:  fmt.Sprintf("level-%d", i),
			Flow:  api.DefaultFlowConfig(),
			Nodes: map[string]api.Node{"start": NewFlowNode(current)},
		})
	}
	return current
}

func TestFlowNode_NestingAtLimitSucceeds(t *testing.T) {
	res := mustExecute(t, nestedChain(api.MaxFlowDepth), persistence.NewInMemoryStore())
	require.True(t, res.Success)
	require.Equal(t, "end", res.FinalAction.Name())
}

func TestFlowNode_NestingPastLimitFails(t *testing.T) {
	_, err := nestedChain(api.MaxFlowDepth+1).Execute(context.Background(), persistence.NewInMemoryStore())
	require.Error(t, err)
	require.ErrorIs(t, err, api.ErrInvalidConfiguration)
	require.Contains(t, err.Error(), "maximum flow nesting depth 10")
	require.Contains(t, err.Error(), "depth 11")
}

func TestFlowNode_StoresResultRecord(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			inner := NewFlow(Config{
				Name: "inner",
				Flow: api.DefaultFlowConfig(),
				Nodes: map[string]api.Node{
					"start": newActionNode("start", "next"),
					"done":  newActionNode("done", "complete"),
				},
				Routes: []api.Route{{Source: "start", Action: "next", Target: "done"}},
			})
			outer := NewFlow(Config{
				Flow: api.DefaultFlowConfig(),
				Nodes: map[string]api.Node{
					"start":   NewFlowNode(inner),
					"wrap_up": newActionNode("wrap_up", "end"),
				},
				Routes: []api.Route{{Source: "start", Action: "complete", Target: "wrap_up"}},
			})

			store := factory(t)
			res := mustExecute(t, outer, store)
			require.Equal(t, []string{"start", "wrap_up"}, res.ExecutionPath)

			record, ok, err := api.GetAs[map[string]any](context.Background(), store, NestedResultKey)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "complete", record["final_action"])
			require.Equal(t, "done", record["last_node_id"])
			require.Equal(t, true, record["success"])
			require.EqualValues(t, 2, record["steps_executed"])
			require.Equal(t, []any{"start", "done"}, record["execution_path"])
		})
	}
}

func TestFlowNode_ScopedResultKey(t *testing.T) {
	inner := NewFlow(Config{Flow: api.DefaultFlowConfig(), Nodes: map[string]api.Node{"start": newActionNode("s", "end")}})
	node := NewFlowNode(inner, WithResultKey("sub"), WithExecutionScopedResult(), WithNodeName("child"))
	require.Equal(t, "child", node.Name())

	store := persistence.NewInMemoryStore()
	_, err := RunNode(context.Background(), node, store)
	require.NoError(t, err)
	_, err = RunNode(context.Background(), node, store)
	require.NoError(t, err)

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.True(t, strings.HasPrefix(k, "sub_"), k)
	}
}

func TestFlowNode_DefaultName(t *testing.T) {
	named := NewFlow(Config{Name: "billing"})
	require.Equal(t, "flow:billing", NewFlowNode(named).Name())
	require.Equal(t, "flow", NewFlowNode(NewFlow(Config{})).Name())
}

func TestFlowNode_InvalidInnerFlowFailsPrep(t *testing.T) {
	inner := NewFlow(Config{
		Flow:   api.DefaultFlowConfig(),
		Nodes:  map[string]api.Node{"start": newActionNode("start", "go")},
		Routes: []api.Route{{Source: "start", Action: "go", Target: "nowhere"}},
	})

	_, err := RunNode(context.Background(), NewFlowNode(inner), persistence.NewInMemoryStore())

	var ne *api.NodeError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, api.PhasePrep, ne.Phase)
	require.ErrorIs(t, err, api.ErrInvalidConfiguration)
}

func TestFlowNode_InnerFailurePropagates(t *testing.T) {
	inner := NewFlow(Config{
		Flow:  api.DefaultFlowConfig(),
		Nodes: map[string]api.Node{"start": &failingNode{}},
	})
	outer := NewFlow(Config{Flow: api.DefaultFlowConfig(), Nodes: map[string]api.Node{"start": NewFlowNode(inner)}})

	_, err := outer.Execute(context.Background(), persistence.NewInMemoryStore())
	require.ErrorIs(t, err, api.ErrNodeFailed)

	var ne *api.NodeError
	require.True(t, errors.As(err, &ne))
	require.Equal(t, api.PhasePost, ne.Phase, "outermost wrapper fails in post")
}

func TestFlowNode_SharesStoreWithOuterFlow(t *testing.T) {
	inner := NewFlow(Config{
		Flow:  api.DefaultFlowConfig(),
		Nodes: map[string]api.Node{"start": &flakyNode{succeedOn: 1}},
	})
	outer := NewFlow(Config{Flow: api.DefaultFlowConfig(), Nodes: map[string]api.Node{"start": NewFlowNode(inner)}})

	store := persistence.NewInMemoryStore()
	mustExecute(t, outer, store)

	v, ok, err := store.Get(context.Background(), "result")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, v)
}

package api

import (
	"context"
	"slices"
)

const (
	DefaultStartNodeID = "start"
	DefaultMaxSteps    = 1000

	// MaxFlowDepth is the deepest allowed nesting of flows run as nodes.
	MaxFlowDepth = 10
)

// DefaultTerminalActions end a run successfully unless replaced.
var DefaultTerminalActions = []string{"end", "complete", "finish"}

// FlowConfig holds the run settings of a flow.
type FlowConfig struct {
	StartNodeID     string
	MaxSteps        int
	DetectCycles    bool
	TerminalActions []string
}

// DefaultFlowConfig returns start node "start", 1000 steps, cycle detection
// on and the default terminal actions.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		StartNodeID:     DefaultStartNodeID,
		MaxSteps:        DefaultMaxSteps,
		DetectCycles:    true,
		TerminalActions: slices.Clone(DefaultTerminalActions),
	}
}

// IsTerminal reports whether an action with this name ends a run.
func (c FlowConfig) IsTerminal(name string) bool {
	return slices.Contains(c.TerminalActions, name)
}

// Route sends the flow from Source to Target when Source returns an action
// named Action and Condition (if any) holds.
type Route struct {
	Source    string
	Action    string
	Target    string
	Condition *Condition
}

// Flow is a built, immutable graph that can be run against a store.
type Flow interface {
	Name() string
	Config() FlowConfig
	Validate() error
	Execute(ctx context.Context, store Store) (*ExecutionResult, error)
	ExecuteFrom(ctx context.Context, store Store, nodeID string) (*ExecutionResult, error)
}

// ExecutionResult describes a finished run.
type ExecutionResult struct {
	FinalAction   Action
	LastNodeID    string
	StepsExecuted int
	Success       bool
	ExecutionPath []string
}

// Record returns the result as a JSON-shaped map, the form written to the
// store when a flow runs as a node.
func (r *ExecutionResult) Record() map[string]any {
	path := make([]any, 0, len(r.ExecutionPath))
	for _, id := range r.ExecutionPath {
		path = append(path, id)
	}
	return map[string]any{
		"final_action":   r.FinalAction.Name(),
		"last_node_id":   r.LastNodeID,
		"steps_executed": r.StepsExecuted,
		"success":        r.Success,
		"execution_path": path,
	}
}

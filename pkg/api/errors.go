package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Flow error kinds. Use errors.Is against these sentinels to classify an
// error returned by a flow run or by Validate.
var (
	ErrNodeNotFound         = errors.New("node not found")
	ErrNoRouteFound         = errors.New("no route found")
	ErrCycleDetected        = errors.New("cycle detected")
	ErrMaxStepsExceeded     = errors.New("maximum execution steps exceeded")
	ErrNodeFailed           = errors.New("node execution error")
	ErrInvalidConfiguration = errors.New("invalid flow configuration")
	ErrStore                = errors.New("storage error")
)

// FlowError is the error type returned by flow runs and validation.
// Kind is one of the sentinels above; the remaining fields carry whatever
// context applies to that kind.
type FlowError struct {
	Kind    error
	NodeID  string
	Action  string
	Path    []string
	Limit   int
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	switch e.Kind {
	case ErrNodeNotFound:
		return fmt.Sprintf("node not found: %s", e.NodeID)
	case ErrNoRouteFound:
		return fmt.Sprintf("no route found from node '%s' for action '%s'", e.NodeID, e.Action)
	case ErrCycleDetected:
		return fmt.Sprintf("cycle detected in flow: %s", strings.Join(e.Path, " -> "))
	case ErrMaxStepsExceeded:
		return fmt.Sprintf("maximum execution steps exceeded: %d", e.Limit)
	case ErrNodeFailed:
		return fmt.Sprintf("node execution error: %s", e.detail())
	case ErrInvalidConfiguration:
		return fmt.Sprintf("invalid flow configuration: %s", e.detail())
	case ErrStore:
		return fmt.Sprintf("storage error: %s", e.detail())
	default:
		return e.detail()
	}
}

func (e *FlowError) detail() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}

// Is reports whether target is the kind of this error.
func (e *FlowError) Is(target error) bool {
	return target != nil && target == e.Kind
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewInvalidConfiguration returns an ErrInvalidConfiguration FlowError.
func NewInvalidConfiguration(format string, args ...any) *FlowError {
	return &FlowError{Kind: ErrInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Phase identifies the node phase an error originated from.
type Phase string

const (
	PhasePrep Phase = "prep"
	PhaseExec Phase = "exec"
	PhasePost Phase = "post"
)

// NodeError wraps a failure surfaced from one phase of a node.
type NodeError struct {
	Node  string
	Phase Phase
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q %s failed: %v", e.Node, e.Phase, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

var kindNames = []struct {
	err  error
	name string
}{
	{ErrNodeNotFound, "node_not_found"},
	{ErrNoRouteFound, "no_route_found"},
	{ErrCycleDetected, "cycle_detected"},
	{ErrMaxStepsExceeded, "max_steps_exceeded"},
	{ErrNodeFailed, "node_failed"},
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrStore, "store"},
	{context.DeadlineExceeded, "cancelled"},
	{context.Canceled, "cancelled"},
}

// KindName returns a stable snake_case name for err, classified by its
// outermost FlowError so a failure inside a nested flow reports as
// node_failed. Unclassified errors are "unknown".
func KindName(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		err = fe.Kind
	}
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}

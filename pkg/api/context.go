package api

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
)

// FlowDepthKey is the metadata key carrying the nesting depth of the flow
// a node runs in. Top-level flows run at depth 0.
const FlowDepthKey = "flow_depth"

// ExecutionContext is created fresh for every node invocation and is not
// shared between nodes.
type ExecutionContext struct {
	ExecutionID  string
	CurrentRetry int
	// MaxRetries counts attempts including the first one.
	MaxRetries int
	RetryDelay time.Duration
	Metadata   map[string]any
}

// NewExecutionContext returns a context with a new execution id.
func NewExecutionContext(maxRetries int, retryDelay time.Duration) *ExecutionContext {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &ExecutionContext{
		ExecutionID: uuid.NewString(),
		MaxRetries:  maxRetries,
		RetryDelay:  retryDelay,
		Metadata:    make(map[string]any),
	}
}

// CanRetry reports whether another Exec attempt is allowed.
func (c *ExecutionContext) CanRetry() bool {
	return c.CurrentRetry+1 < c.MaxRetries
}

// NextRetry advances the retry counter.
func (c *ExecutionContext) NextRetry() {
	c.CurrentRetry++
}

// Attempt returns the 1-based number of the current Exec attempt.
func (c *ExecutionContext) Attempt() int {
	return c.CurrentRetry + 1
}

func (c *ExecutionContext) GetMetadata(key string) (any, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

func (c *ExecutionContext) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

func (c *ExecutionContext) RemoveMetadata(key string) (any, bool) {
	v, ok := c.Metadata[key]
	delete(c.Metadata, key)
	return v, ok
}

// FlowDepth returns the flow_depth metadata value, or 0.
func (c *ExecutionContext) FlowDepth() int {
	v, ok := c.Metadata[FlowDepthKey]
	if !ok {
		return 0
	}
	if n, isNum := toFloat(v); isNum {
		return int(n)
	}
	return 0
}

// Clone returns a copy with its own metadata map.
func (c *ExecutionContext) Clone() *ExecutionContext {
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}

type flowDepthKey struct{}

// WithFlowDepth returns a context carrying the nesting depth for nodes run
// under it.
func WithFlowDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, flowDepthKey{}, depth)
}

// FlowDepthFromContext returns the depth set by WithFlowDepth, or 0.
func FlowDepthFromContext(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	if d, ok := ctx.Value(flowDepthKey{}).(int); ok {
		return d
	}
	return 0
}

package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunInfo identifies one run of a flow.
type RunInfo struct {
	Flow  string
	RunID string
	Depth int
}

// Observer receives callbacks from the flow engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay flow execution.
type Observer interface {
	// OnFlowStart is called before the first node of a run is executed.
	OnFlowStart(ctx context.Context, run RunInfo, startNode string)

	// OnFlowCompleted is called when a run ends on a terminal action.
	OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult)

	// OnFlowFailed is called when a run aborts with an error.
	OnFlowFailed(ctx context.Context, run RunInfo, err error)

	// OnNodeStart is called before a node's Prep phase.
	// step is the 0-based position of the node in the execution path.
	OnNodeStart(ctx context.Context, run RunInfo, nodeID string, step int)

	// OnNodeRetry is called after a failed Exec attempt that will be retried.
	OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error)

	// OnNodeCompleted is called after a node finishes, for both successes
	// and failures (err != nil).
	OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, run RunInfo, startNode string)            {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult) {}
func (NoopObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error)                  {}
func (NoopObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string, step int)     {}
func (NoopObserver) OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error) {
}
func (NoopObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, run RunInfo, startNode string) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, run, startNode)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, run, result)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string, step int) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, nodeID, step)
	}
}

func (c *CompositeObserver) OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error) {
	for _, o := range c.observers {
		o.OnNodeRetry(ctx, run, nodeID, attempt, err)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, run, nodeID, step, action, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow and node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, run RunInfo, startNode string) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.Int("depth", run.Depth),
		slog.String("start_node", startNode),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.String("final_action", result.FinalAction.Name()),
		slog.String("last_node", result.LastNodeID),
		slog.Int("steps", result.StepsExecuted),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string, step int) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.String("node", nodeID),
		slog.Int("step", step),
	)
}

func (o *LoggingObserver) OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error) {
	o.Logger.WarnContext(ctx, "node_retry",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.String("node", nodeID),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_completed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.RunID),
		slog.String("node", nodeID),
		slog.Int("step", step),
		slog.String("action", action.String()),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted      atomic.Int64
	flowsCompleted    atomic.Int64
	flowsFailed       atomic.Int64
	nodesCompleted    atomic.Int64
	nodesFailed       atomic.Int64
	retries           atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	FlowsFailed    int64
	RunningFlows   int64

	NodesCompleted  int64
	NodesFailed     int64
	Retries         int64
	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, run RunInfo, startNode string) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	m.flowsFailed.Add(1)
}

func (m *BasicMetrics) OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error) {
	m.retries.Add(1)
}

func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, d time.Duration) {
	if err != nil {
		m.nodesFailed.Add(1)
		return
	}
	// Only successful nodes count towards the average duration.
	m.nodesCompleted.Add(1)
	m.totalNodeDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		FlowsFailed:     failed,
		RunningFlows:    started - completed - failed,
		NodesCompleted:  nodes,
		NodesFailed:     m.nodesFailed.Load(),
		Retries:         m.retries.Load(),
		AvgNodeDuration: avg,
	}
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts    int
	completes int
	fails     int

	nodeStarts    int
	nodeRetries   int
	nodeCompletes int

	lastRun        RunInfo
	lastFailErr    error
	lastResult     *ExecutionResult
	lastNodeID     string
	lastStep       int
	lastAttempt    int
	lastAction     Action
	lastNodeErr    error
	lastNodeLength time.Duration
}

func (o *testObserver) OnFlowStart(ctx context.Context, run RunInfo, startNode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastRun = run
}

func (o *testObserver) OnFlowCompleted(ctx context.Context, run RunInfo, result *ExecutionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastResult = result
}

func (o *testObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails++
	o.lastFailErr = err
}

func (o *testObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string, step int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeStarts++
	o.lastNodeID, o.lastStep = nodeID, step
}

func (o *testObserver) OnNodeRetry(ctx context.Context, run RunInfo, nodeID string, attempt int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeRetries++
	o.lastAttempt = attempt
}

func (o *testObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID string, step int, action Action, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeCompletes++
	o.lastAction, o.lastNodeErr, o.lastNodeLength = action, err, d
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Copy to avoid reuse issues.
	cpy := slog.Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		cpy.AddAttrs(a)
		return true
	})
	h.records = append(h.records, cpy)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Not needed for tests; just return itself.
	return h
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	// Not needed for tests.
	return h
}

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func newTestRun() RunInfo {
	return RunInfo{Flow: "flow-test", RunID: "run-123", Depth: 1}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()
	var o Observer = NoopObserver{}

	// These calls should simply not panic.
	o.OnFlowStart(ctx, run, "start")
	o.OnFlowCompleted(ctx, run, &ExecutionResult{})
	o.OnFlowFailed(ctx, run, errors.New("boom"))
	o.OnNodeStart(ctx, run, "start", 0)
	o.OnNodeRetry(ctx, run, "start", 1, errors.New("retry"))
	o.OnNodeCompleted(ctx, run, "start", 0, Simple("end"), nil, time.Second)
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil)

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("node failed")
	result := &ExecutionResult{LastNodeID: "b"}
	co.OnFlowStart(ctx, run, "a")
	co.OnFlowCompleted(ctx, run, result)
	co.OnFlowFailed(ctx, run, err)
	co.OnNodeStart(ctx, run, "b", 1)
	co.OnNodeRetry(ctx, run, "b", 2, err)
	co.OnNodeCompleted(ctx, run, "b", 1, Simple("next"), err, 2*time.Second)

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.completes != 1 || o.fails != 1 || o.nodeStarts != 1 || o.nodeRetries != 1 || o.nodeCompletes != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastRun != run || o.lastResult != result || o.lastFailErr != err {
			t.Fatalf("observer %d flow event mismatch", i+1)
		}
		if o.lastNodeID != "b" || o.lastStep != 1 || o.lastAttempt != 2 {
			t.Fatalf("observer %d node event mismatch: %+v", i+1, o)
		}
		if o.lastAction.Name() != "next" || o.lastNodeErr != err || o.lastNodeLength != 2*time.Second {
			t.Fatalf("observer %d nodeCompleted mismatch: %+v", i+1, o)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnFlowStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnFlowStart(ctx, run, "start")

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "flow_start" {
		t.Fatalf("expected message flow_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["flow"] != run.Flow {
		t.Fatalf("expected flow=%q, got %v", run.Flow, attrs["flow"])
	}
	if attrs["run_id"] != run.RunID {
		t.Fatalf("expected run_id=%q, got %v", run.RunID, attrs["run_id"])
	}
	if attrs["start_node"] != "start" {
		t.Fatalf("expected start_node=start, got %v", attrs["start_node"])
	}
}

func TestLoggingObserver_OnNodeRetry_EmitsWarn(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnNodeRetry(context.Background(), newTestRun(), "fetch", 2, errors.New("timeout"))

	if len(h.records) != 1 || h.records[0].Level != slog.LevelWarn {
		t.Fatalf("expected one warn record, got %+v", h.records)
	}
	attrs := attrsToMap(h.records[0])
	if attrs["node"] != "fetch" || attrs["attempt"] != int64(2) {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

func TestLoggingObserver_OnNodeCompleted_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnNodeCompleted(ctx, run, "node-ok", 0, Simple("next"), nil, time.Second)
	err := errors.New("boom")
	o.OnNodeCompleted(ctx, run, "node-fail", 1, Action{}, err, 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}

	successRec := h.records[0]
	failRec := h.records[1]

	if successRec.Level != slog.LevelDebug {
		t.Fatalf("expected success record LevelDebug, got %v", successRec.Level)
	}
	if failRec.Level != slog.LevelError {
		t.Fatalf("expected failure record LevelError, got %v", failRec.Level)
	}
	if successRec.Message != "node_completed" || failRec.Message != "node_completed" {
		t.Fatalf("expected node_completed messages, got %q and %q", successRec.Message, failRec.Message)
	}

	if got := attrsToMap(successRec)["action"]; got != "next" {
		t.Fatalf("expected action=next, got %v", got)
	}
	attrs := attrsToMap(failRec)
	if attrs["node"] != "node-fail" {
		t.Fatalf("expected node=node-fail, got %v", attrs["node"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_FlowCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()
	run := newTestRun()

	// 3 started, 1 completed, 1 failed -> running = 1
	m.OnFlowStart(ctx, run, "start")
	m.OnFlowStart(ctx, run, "start")
	m.OnFlowStart(ctx, run, "start")

	m.OnFlowCompleted(ctx, run, &ExecutionResult{})
	m.OnFlowFailed(ctx, run, errors.New("fail"))

	snap := m.Snapshot()

	if snap.FlowsStarted != 3 {
		t.Fatalf("FlowsStarted=%d, want 3", snap.FlowsStarted)
	}
	if snap.FlowsCompleted != 1 {
		t.Fatalf("FlowsCompleted=%d, want 1", snap.FlowsCompleted)
	}
	if snap.FlowsFailed != 1 {
		t.Fatalf("FlowsFailed=%d, want 1", snap.FlowsFailed)
	}
	if snap.RunningFlows != 1 {
		t.Fatalf("RunningFlows=%d, want 1", snap.RunningFlows)
	}
	if snap.NodesCompleted != 0 {
		t.Fatalf("NodesCompleted=%d, want 0", snap.NodesCompleted)
	}
	if snap.AvgNodeDuration != 0 {
		t.Fatalf("AvgNodeDuration=%v, want 0", snap.AvgNodeDuration)
	}
}

func TestBasicMetrics_OnNodeCompleted_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	run := newTestRun()

	// two successful nodes: 1s and 3s
	m.OnNodeCompleted(ctx, run, "a", 0, Simple("next"), nil, 1*time.Second)
	m.OnNodeCompleted(ctx, run, "b", 1, Simple("next"), nil, 3*time.Second)

	// one failing node, should NOT affect duration metrics
	m.OnNodeCompleted(ctx, run, "c", 2, Action{}, errors.New("fail"), 10*time.Second)
	m.OnNodeRetry(ctx, run, "c", 1, errors.New("fail"))

	snap := m.Snapshot()

	if snap.NodesCompleted != 2 {
		t.Fatalf("NodesCompleted=%d, want 2", snap.NodesCompleted)
	}
	if snap.NodesFailed != 1 {
		t.Fatalf("NodesFailed=%d, want 1", snap.NodesFailed)
	}
	if snap.Retries != 1 {
		t.Fatalf("Retries=%d, want 1", snap.Retries)
	}

	wantAvg := 2 * time.Second // (1s + 3s) / 2
	if snap.AvgNodeDuration != wantAvg {
		t.Fatalf("AvgNodeDuration=%v, want %v", snap.AvgNodeDuration, wantAvg)
	}
}

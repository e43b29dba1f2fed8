// Package pocketflow provides a small, embeddable engine for running flows:
// directed graphs of nodes connected by action-labelled routes.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Node
//  2. Action
//  3. Store
//  4. Flow
//  5. Runner
//
// # Node
//
// A node runs in three phases. Prep reads from the shared store, Exec does
// the work without touching the store, and Post writes results and returns
// an Action naming what happened. Only Exec is retried; when the attempts
// configured on the node are used up, ExecFallback gets the last error and
// may substitute a value.
//
// Embed BaseNode to inherit defaults and override only the phases you need.
// Builtin nodes live in pkg/nodes.
//
// # Actions and routes
//
// The engine looks up the next node by the pair (current node id, action
// name). Several routes may share that pair; they are tried in declaration
// order and the first one whose Condition holds wins. A run ends
// successfully as soon as a node returns a terminal action ("end",
// "complete" or "finish" by default), even if a route exists for it.
//
// # Store
//
// All nodes of a run share one Store. Backends:
//
//   - In-memory (NewMemoryStore)
//   - JSON file (NewFileStore)
//   - SQLite and Postgres through database/sql
//   - Redis
//   - MongoDB
//
// # Flow
//
// Flows are assembled with FlowBuilder:
//
//	flow := pocketflow.New("review").
//	    Node("start", fetch).
//	    Node("summarize", summarize).
//	    Route("start", "fetched", "summarize").
//	    Build()
//
//	if err := flow.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := flow.Execute(ctx, pocketflow.NewMemoryStore())
//
// A built Flow is immutable and may be executed concurrently against
// different stores. Runs are bounded by MaxSteps and, unless disabled, fail
// as soon as a node would be visited twice.
//
// A flow can itself be used as a node with NewFlowNode. Nested runs share
// the outer store and may be at most ten levels deep.
//
// # Runner
//
// Runner executes independent requests concurrently, and Scheduler triggers
// runs from cron expressions.
//
// # Observability
//
// Attach an Observer with FlowBuilder.Observer. LoggingObserver logs through
// log/slog and BasicMetrics keeps counters.
package pocketflow

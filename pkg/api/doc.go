// Package api contains the core building blocks used by the pocketflow
// engine: actions and conditions, the node contract, the shared store
// contract, flow configuration, execution results, errors and observers.
//
// Most users interact with the higher-level pocketflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for node authors, store implementers and contributors
// extending the engine itself.
//
// # Nodes
//
// A node is a unit of work executed in three phases:
//
//   - Prep reads and validates inputs from the store.
//   - Exec performs the core computation. It receives no store, so it can be
//     retried without touching shared state.
//   - Post writes results back to the store and returns the next Action.
//
// Only Exec is retried. When the node's attempts are exhausted the engine
// calls ExecFallback, which re-raises the error unless the node overrides it.
// Embed BaseNode to get the default behavior for everything you do not
// implement yourself.
//
// # Actions and routing
//
// Actions label transitions between nodes. The router matches routes on
// Action.Name only; richer variants (parameters, priority, metadata,
// conditional and multiple actions) are available to producers but are not
// inspected when choosing the next node.
//
// Conditions gate routes. They are evaluated against the current store
// snapshot and must not mutate it.
//
// # Observability
//
// Observer receives flow and node lifecycle callbacks. LoggingObserver writes
// them through log/slog and BasicMetrics keeps simple counters; combine them
// with NewCompositeObserver.
package api

package pocketflow

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/pocketflow/internal/engine"
	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/internal/taskqueue"
	"github.com/petrijr/pocketflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Action               = api.Action
	ActionBuilder        = api.ActionBuilder
	Condition            = api.Condition
	ComparisonOperator   = api.ComparisonOperator
	Store                = api.Store
	Node                 = api.Node
	BaseNode             = api.BaseNode
	ExecutionContext     = api.ExecutionContext
	ExecutionResult      = api.ExecutionResult
	FlowConfig           = api.FlowConfig
	Route                = api.Route
	RetryPolicy          = api.RetryPolicy
	FlowError            = api.FlowError
	NodeError            = api.NodeError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	// Flow is the concrete flow produced by FlowBuilder.Build.
	Flow = engine.Flow

	FlowNode       = engine.FlowNode
	FlowNodeOption = engine.FlowNodeOption

	// Queue and Task feed queued runs to pkg/worker.
	Queue = taskqueue.Queue
	Task  = taskqueue.Task
)

// Re-export action and condition constructors.

var (
	Simple            = api.Simple
	Parameterized     = api.Parameterized
	ConditionalAction = api.ConditionalAction
	Multiple          = api.Multiple
	Prioritized       = api.Prioritized
	WithMetadata      = api.WithMetadata
	NewActionBuilder  = api.NewActionBuilder

	Always         = api.Always
	Never          = api.Never
	KeyExists      = api.KeyExists
	KeyEquals      = api.KeyEquals
	NumericCompare = api.NumericCompare
	Expression     = api.Expression
	And            = api.And
	Or             = api.Or
	Not            = api.Not
)

// Re-export the error kinds.

var (
	ErrNodeNotFound         = api.ErrNodeNotFound
	ErrNoRouteFound         = api.ErrNoRouteFound
	ErrCycleDetected        = api.ErrCycleDetected
	ErrMaxStepsExceeded     = api.ErrMaxStepsExceeded
	ErrNodeFailed           = api.ErrNodeFailed
	ErrInvalidConfiguration = api.ErrInvalidConfiguration
	ErrStore                = api.ErrStore

	ErrQueueFull = taskqueue.ErrQueueFull

	KindName = api.KindName
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export nested flow options.

var (
	WithNodeName              = engine.WithNodeName
	WithResultKey             = engine.WithResultKey
	WithExecutionScopedResult = engine.WithExecutionScopedResult
)

// NewFlowNode wraps flow so it can be registered as a node of another flow.
func NewFlowNode(flow api.Flow, opts ...FlowNodeOption) *FlowNode {
	return engine.NewFlowNode(flow, opts...)
}

// RunNode runs a single node against store outside of any flow and returns
// the action it produced.
func RunNode(ctx context.Context, node Node, store Store) (Action, error) {
	return engine.RunNode(ctx, node, store)
}

// Store constructors.
// These wrap the internal/persistence package so external callers
// never need to import internal packages.

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() Store {
	return persistence.NewInMemoryStore()
}

// NewMemoryStoreFrom returns an in-memory store seeded with a copy of values.
func NewMemoryStoreFrom(values map[string]any) Store {
	return persistence.NewInMemoryStoreFrom(values)
}

// NewFileStore opens a store kept as a JSON document at path.
func NewFileStore(path string) (Store, error) {
	s, err := persistence.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore returns a store in the pocketflow_kv table of db, creating
// it if needed. Entries are scoped by prefix.
func NewSQLiteStore(db *sql.DB, prefix string) (Store, error) {
	s, err := persistence.NewSQLiteStore(db, prefix)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStore is like NewSQLiteStore for PostgreSQL.
func NewPostgresStore(db *sql.DB, prefix string) (Store, error) {
	s, err := persistence.NewPostgresStore(db, prefix)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewRedisStore returns a store in Redis under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) Store {
	return persistence.NewRedisStore(client, prefix)
}

// NewMongoStore returns a store in the given MongoDB collection.
func NewMongoStore(client *mongo.Client, database, collection, prefix string) Store {
	return persistence.NewMongoStore(client, database, collection, prefix)
}

// GetAs reads key from store and converts it to T.
func GetAs[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	return api.GetAs[T](ctx, store, key)
}

// Queue constructors.

// NewInMemoryQueue returns a queue holding at most capacity tasks.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a queue in the pocketflow_tasks table of db.
func NewSQLiteQueue(ctx context.Context, db *sql.DB) (Queue, error) {
	q, err := taskqueue.NewSQLiteQueue(ctx, db)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewPostgresQueue is like NewSQLiteQueue for PostgreSQL.
func NewPostgresQueue(ctx context.Context, db *sql.DB) (Queue, error) {
	q, err := taskqueue.NewPostgresQueue(ctx, db)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewRedisQueue returns a queue in the Redis sorted set <prefix>:tasks.
func NewRedisQueue(client redis.UniversalClient, prefix string) Queue {
	return taskqueue.NewRedisQueue(client, prefix)
}

// NewMongoQueue returns a queue in the given MongoDB collection.
func NewMongoQueue(client *mongo.Client, database, collection string) Queue {
	return taskqueue.NewMongoQueue(client, database, collection)
}

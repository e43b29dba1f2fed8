package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/pocketflow/internal/taskqueue"
)

// QueueBackend is an opened task queue together with the connection it owns.
type QueueBackend struct {
	Queue taskqueue.Queue
	close func() error
}

// Close releases the queue's connection. Calling it more than once is
// allowed.
func (b *QueueBackend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	fn := b.close
	b.close = nil
	return fn()
}

// OpenQueue connects to the configured queue backend. It returns nil when
// queued runs are disabled.
func OpenQueue(ctx context.Context, cfg *Config) (*QueueBackend, error) {
	q := cfg.Queue
	switch q.Backend {
	case "":
		return nil, nil

	case "memory":
		return &QueueBackend{Queue: taskqueue.NewInMemoryQueue(q.Capacity)}, nil

	case "sqlite":
		db, err := sql.Open("sqlite", q.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite queue: %w", err)
		}
		if q.DSN == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		queue, err := taskqueue.NewSQLiteQueue(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite queue: %w", err)
		}
		return &QueueBackend{Queue: queue, close: db.Close}, nil

	case "postgres":
		driver := "pgx"
		if cfg.Store.Driver == "pq" {
			driver = "postgres"
		}
		db, err := sql.Open(driver, q.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres queue: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		queue, err := taskqueue.NewPostgresQueue(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init postgres queue: %w", err)
		}
		return &QueueBackend{Queue: queue, close: db.Close}, nil

	case "redis":
		r := cfg.Store.Redis
		client := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &QueueBackend{Queue: taskqueue.NewRedisQueue(client, cfg.Store.Prefix), close: client.Close}, nil

	case "mongo":
		m := cfg.Store.Mongo
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		return &QueueBackend{
			Queue: taskqueue.NewMongoQueue(client, m.Database, q.Collection),
			close: func() error { return client.Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q", q.Backend)
	}
}

package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/pkg/api"
)

// Backend is an opened store together with the connection it owns.
type Backend struct {
	Store api.Store
	close func() error
}

// Close releases the backend's connection. Calling it more than once is
// allowed.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	fn := b.close
	b.close = nil
	return fn()
}

// OpenStore connects to the configured backend.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return &Backend{Store: persistence.NewInMemoryStore()}, nil

	case "file":
		s, err := persistence.NewFileStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return &Backend{Store: s}, nil

	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "pocketflow.db"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if dsn == ":memory:" {
			// each connection would get its own empty database
			db.SetMaxOpenConns(1)
		}
		s, err := persistence.NewSQLiteStore(db, cfg.Prefix)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{Store: s, close: db.Close}, nil

	case "postgres":
		driver := "pgx"
		if cfg.Driver == "pq" {
			driver = "postgres"
		}
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		s, err := persistence.NewPostgresStore(db, cfg.Prefix)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{Store: s, close: db.Close}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &Backend{Store: persistence.NewRedisStore(client, cfg.Prefix), close: client.Close}, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		s := persistence.NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Prefix)
		return &Backend{Store: s, close: func() error {
			return client.Disconnect(context.Background())
		}}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

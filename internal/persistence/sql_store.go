package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the placeholder style of a SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var kvSchema = []string{
	`CREATE TABLE IF NOT EXISTS pocketflow_kv (
		id TEXT PRIMARY KEY,
		prefix TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pocketflow_kv_prefix_idx ON pocketflow_kv (prefix)`,
}

// SQLStore is a store backed by a single key-value table. Rows are keyed by
// "<prefix>:<key>" so several stores can share one table.
//
// It expects an *sql.DB opened with a matching driver. The caller is
// responsible for importing the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//	import _ "github.com/jackc/pgx/v5/stdlib"
type SQLStore struct {
	db      *sql.DB
	prefix  string
	dialect Dialect
	now     func() time.Time
}

// NewSQLiteStore initializes the schema in db and returns a store using
// prefix (DefaultPrefix when empty).
func NewSQLiteStore(db *sql.DB, prefix string) (*SQLStore, error) {
	return newSQLStore(db, prefix, DialectSQLite)
}

// NewPostgresStore initializes the schema in db and returns a store using
// prefix (DefaultPrefix when empty).
func NewPostgresStore(db *sql.DB, prefix string) (*SQLStore, error) {
	return newSQLStore(db, prefix, DialectPostgres)
}

func newSQLStore(db *sql.DB, prefix string, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		prefix:  prefixOrDefault(prefix),
		dialect: dialect,
		now:     time.Now,
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range kvSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.dialect, err)
		}
	}
	return nil
}

// Prefix returns the key namespace of this store.
func (s *SQLStore) Prefix() string { return s.prefix }

func (s *SQLStore) rowID(key string) string {
	return s.prefix + ":" + key
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Set(ctx context.Context, key string, value any) error {
	encoded, err := EncodeValue(value)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO pocketflow_kv (id, prefix, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		s.rowID(key), s.prefix, encoded, now, now,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM pocketflow_kv WHERE id = ?`), s.rowID(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`DELETE FROM pocketflow_kv WHERE id = ? RETURNING value`), s.rowID(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("remove %q: %w", key, err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM pocketflow_kv WHERE id = ?`), s.rowID(key)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("contains %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id FROM pocketflow_kv WHERE prefix = ? ORDER BY id`), s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		keys = append(keys, strings.TrimPrefix(id, s.prefix+":"))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pocketflow_kv WHERE prefix = ?`), s.prefix); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM pocketflow_kv WHERE prefix = ?`), s.prefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

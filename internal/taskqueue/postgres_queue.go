package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresQueue is a Queue in a PostgreSQL table:
//
//	CREATE TABLE pocketflow_tasks (
//	    id         TEXT PRIMARY KEY,
//	    payload    BYTEA NOT NULL,
//	    not_before TIMESTAMPTZ NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	)
//
// Rows are claimed with FOR UPDATE SKIP LOCKED so concurrent workers never
// receive the same task.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the queue table if needed.
func NewPostgresQueue(ctx context.Context, db *sql.DB) (*PostgresQueue, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pocketflow_tasks (
			id         TEXT PRIMARY KEY,
			payload    BYTEA NOT NULL,
			not_before TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, err
	}
	return &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}, nil
}

var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO pocketflow_tasks (id, payload, not_before) VALUES ($1, $2, $3)`,
		t.ID, data, notBefore.UTC())
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := q.claim(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			if err := waitFor(ctx, q.pollInterval); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return DecodeTask(payload)
	}
}

func (q *PostgresQueue) claim(ctx context.Context) ([]byte, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id      string
		payload []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload FROM pocketflow_tasks
		WHERE not_before <= now()
		ORDER BY not_before, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&id, &payload)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pocketflow_tasks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payload, nil
}

func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pocketflow_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

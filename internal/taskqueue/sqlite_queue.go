package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent Queue in a SQLite table. Tasks are claimed in
// a transaction, ordered by not_before then insertion.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue creates the queue table if needed.
func NewSQLiteQueue(ctx context.Context, db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{db: db, pollInterval: 20 * time.Millisecond}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pocketflow_tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			payload BLOB NOT NULL,
			not_before INTEGER NOT NULL
		)`); err != nil {
		return nil, err
	}
	return q, nil
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := EncodeTask(t)
	if err != nil {
		return err
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO pocketflow_tasks (id, payload, not_before) VALUES (?, ?, ?)`,
		t.ID, payload, notBefore.UnixNano())
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := q.claim(ctx, time.Now())
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

// claim deletes and returns the payload of the next ready row.
func (q *SQLiteQueue) claim(ctx context.Context, now time.Time) ([]byte, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq     int64
		payload []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, payload FROM pocketflow_tasks
		WHERE not_before <= ?
		ORDER BY not_before, seq
		LIMIT 1`, now.UnixNano()).Scan(&seq, &payload)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pocketflow_tasks WHERE seq = ?`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payload, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pocketflow_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

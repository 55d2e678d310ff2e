// Package journal persists the terminal outcome of every pooled request to
// SQLite for inspection and retention-bounded history.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one terminal request outcome.
type Entry struct {
	RequestID      string
	SessionID      string
	Operation      string
	Action         string
	Priority       string
	Status         string // completed | failed | timed_out | dropped
	WorkerExecuted bool
	QueuedAt       time.Time
	CompletedAt    time.Time
	DurationMs     int64
	Error          string
	SnapshotDigest string
}

// Journal is a SQLite-backed request log.
type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal database at path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS request_log (
  request_id      TEXT PRIMARY KEY,
  session_id      TEXT,
  operation       TEXT NOT NULL,
  action          TEXT NOT NULL,
  priority        TEXT NOT NULL,
  status          TEXT NOT NULL,
  worker_executed INTEGER NOT NULL DEFAULT 0,
  queued_at       TEXT NOT NULL,
  completed_at    TEXT NOT NULL,
  duration_ms     INTEGER NOT NULL,
  error           TEXT,
  snapshot_digest TEXT
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap journal: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS request_log_completed_at_idx ON request_log(completed_at);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap journal index: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record inserts one terminal entry. Re-recording the same request id is an
// error; a request resolves exactly once.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return fmt.Errorf("request_id is empty")
	}
	if e.Status == "" {
		return fmt.Errorf("status is empty")
	}

	var errVal any
	if e.Error != "" {
		errVal = e.Error
	}
	var digestVal any
	if e.SnapshotDigest != "" {
		digestVal = e.SnapshotDigest
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO request_log(
  request_id, session_id, operation, action, priority, status,
  worker_executed, queued_at, completed_at, duration_ms, error, snapshot_digest
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.RequestID, e.SessionID, e.Operation, e.Action, e.Priority, e.Status,
		boolToInt(e.WorkerExecuted),
		e.QueuedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
		e.DurationMs, errVal, digestVal,
	)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recently completed first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT request_id, session_id, operation, action, priority, status,
       worker_executed, queued_at, completed_at, duration_ms, error, snapshot_digest
FROM request_log
ORDER BY completed_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			workerInt int
			queuedS   string
			doneS     string
			errS      sql.NullString
			digestS   sql.NullString
		)
		if err := rows.Scan(
			&e.RequestID, &e.SessionID, &e.Operation, &e.Action, &e.Priority, &e.Status,
			&workerInt, &queuedS, &doneS, &e.DurationMs, &errS, &digestS,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.WorkerExecuted = workerInt != 0
		if t, err := time.Parse(time.RFC3339Nano, queuedS); err == nil {
			e.QueuedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, doneS); err == nil {
			e.CompletedAt = t
		}
		if errS.Valid {
			e.Error = errS.String
		}
		if digestS.Valid {
			e.SnapshotDigest = digestS.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries completed before now - retention.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM request_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

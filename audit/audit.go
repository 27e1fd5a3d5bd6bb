// Package audit keeps an append-only SQLite record of every payment
// confirmation attempt, including rejected and duplicate ones.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const (
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeRejected       = "rejected"
)

const schema = `
CREATE TABLE IF NOT EXISTS payment_audit (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL,
    source      TEXT NOT NULL,
    session_id  TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    code        TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_audit_order ON payment_audit(order_id, recorded_at);
`

// Fixed width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Entry struct {
	OrderID    string
	Source     string
	SessionID  string
	Outcome    string
	Code       string
	RequestID  string
	RecordedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Save(ctx context.Context, e *Entry) error {
	const q = `
		INSERT INTO payment_audit
			(order_id, source, session_id, outcome, code, request_id, recorded_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		e.OrderID,
		e.Source,
		e.SessionID,
		e.Outcome,
		e.Code,
		e.RequestID,
		e.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("audit: save entry for %q: %w", e.OrderID, err)
	}
	return nil
}

// ListByOrder returns the attempts for one order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]Entry, error) {
	const q = `
		SELECT order_id, source, session_id, outcome, code, request_id, recorded_at
		FROM   payment_audit
		WHERE  order_id = ?
		ORDER  BY recorded_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("audit: list %q: %w", orderID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.OrderID, &e.Source, &e.SessionID, &e.Outcome, &e.Code, &e.RequestID, &recordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("audit: parse recorded_at %q: %w", recordedAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CycleRecord is one monitoring cycle's outcome, kept in a local SQLite
// history so drift (a case disappearing, counts dropping) can be examined
// after the fact without trawling logs.
type CycleRecord struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalCases   int
	TotalCharges int
	TotalDockets int
	NewCharges   int
	NewDockets   int
	NewDocuments int
	Errors       int
	OK           bool
}

const historySchema = `
CREATE TABLE IF NOT EXISTS cycle_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	total_cases   INTEGER NOT NULL,
	total_charges INTEGER NOT NULL,
	total_dockets INTEGER NOT NULL,
	new_charges   INTEGER NOT NULL,
	new_dockets   INTEGER NOT NULL,
	new_documents INTEGER NOT NULL,
	errors        INTEGER NOT NULL,
	ok            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycle_history_started ON cycle_history(started_at);
`

// History is the cycle outcome log.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the history database at path.
// Use ":memory:" in tests.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open history: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: history schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: history ping: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

// Record appends one cycle's outcome.
func (h *History) Record(ctx context.Context, r CycleRecord) error {
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO cycle_history
			(started_at, finished_at, total_cases, total_charges, total_dockets,
			 new_charges, new_dockets, new_documents, errors, ok)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.Format(time.RFC3339), r.FinishedAt.Format(time.RFC3339),
		r.TotalCases, r.TotalCharges, r.TotalDockets,
		r.NewCharges, r.NewDockets, r.NewDocuments, r.Errors, ok)
	if err != nil {
		return fmt.Errorf("state: record cycle: %w", err)
	}
	return nil
}

// Recent returns the latest n cycle records, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]CycleRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT started_at, finished_at, total_cases, total_charges, total_dockets,
		       new_charges, new_dockets, new_documents, errors, ok
		FROM cycle_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("state: query history: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		var started, finished string
		var ok int
		if err := rows.Scan(&started, &finished, &r.TotalCases, &r.TotalCharges,
			&r.TotalDockets, &r.NewCharges, &r.NewDockets, &r.NewDocuments,
			&r.Errors, &ok); err != nil {
			return nil, fmt.Errorf("state: scan history: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		r.OK = ok == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

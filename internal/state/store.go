// Package state persists processing idempotency for the polling engine:
// which filings have been handled, plus an append-only audit log of
// scheduler misfires and job errors.
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_filings (
    accession_number TEXT PRIMARY KEY,
    ticker TEXT,
    filing_date TEXT,
    processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS scheduler_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    job_id TEXT,
    scheduled_run_time TEXT,
    exception TEXT,
    traceback TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// EventType classifies a scheduler_events row.
type EventType string

const (
	EventMisfire EventType = "misfire"
	EventError   EventType = "error"
)

// Store tracks processed filings and scheduler events.
// Safe for concurrent use: the underlying pool serializes writes and WAL
// mode keeps readers unblocked.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// New opens (or creates) the state database and ensures the schema exists.
func New(db *database.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return &Store{
		db:  db,
		log: log.With().Str("component", "state_store").Logger(),
	}, nil
}

// IsProcessed checks if a filing has already been processed.
func (s *Store) IsProcessed(accession string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM processed_filings WHERE accession_number = ?`, accession).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed state: %w", err)
	}
	return true, nil
}

// MarkProcessed records a filing as processed. Idempotent: a second call
// with the same accession number is a no-op.
func (s *Store) MarkProcessed(accession, ticker, filingDate string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_filings (accession_number, ticker, filing_date) VALUES (?, ?, ?)`,
		accession, ticker, filingDate,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", accession, err)
	}
	return nil
}

// ProcessedCount returns the total number of processed filings.
func (s *Store) ProcessedCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_filings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed filings: %w", err)
	}
	return count, nil
}

// RecordSchedulerEvent appends one audit row. Exception and traceback may be
// empty for misfires.
func (s *Store) RecordSchedulerEvent(eventType EventType, jobID, scheduledRunTime, exception, traceback string) error {
	_, err := s.db.Exec(
		`INSERT INTO scheduler_events (event_type, job_id, scheduled_run_time, exception, traceback)
		 VALUES (?, ?, ?, ?, ?)`,
		string(eventType), jobID, scheduledRunTime, exception, traceback,
	)
	if err != nil {
		return fmt.Errorf("failed to record scheduler event: %w", err)
	}
	return nil
}

// Handle is a per-task view of the store bound to a single pooled
// connection. Workers acquire one for the lifetime of a filing task and
// release it on exit.
type Handle struct {
	conn *sql.Conn
}

// Acquire checks out a dedicated connection from the pool.
func (s *Store) Acquire(ctx context.Context) (*Handle, error) {
	conn, err := s.db.Conn().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire state connection: %w", err)
	}
	return &Handle{conn: conn}, nil
}

// Close returns the connection to the pool.
func (h *Handle) Close() error {
	return h.conn.Close()
}

// IsProcessed checks if a filing has already been processed.
func (h *Handle) IsProcessed(ctx context.Context, accession string) (bool, error) {
	var one int
	err := h.conn.QueryRowContext(ctx, `SELECT 1 FROM processed_filings WHERE accession_number = ?`, accession).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed state: %w", err)
	}
	return true, nil
}

// MarkProcessed records a filing as processed on this handle's connection.
func (h *Handle) MarkProcessed(ctx context.Context, accession, ticker, filingDate string) error {
	_, err := h.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_filings (accession_number, ticker, filing_date) VALUES (?, ?, ?)`,
		accession, ticker, filingDate,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", accession, err)
	}
	return nil
}

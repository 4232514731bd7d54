package macro

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/database"
)

const timeseriesSchema = `
CREATE TABLE IF NOT EXISTS macro_probabilities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL,
    event_title TEXT NOT NULL,
    category TEXT,
    sector TEXT,
    related_ticker TEXT,
    probability_yes REAL NOT NULL,
    volume_usd REAL,
    source TEXT DEFAULT 'polymarket',
    timestamp TEXT NOT NULL,
    UNIQUE(event_id, timestamp)
);
CREATE INDEX IF NOT EXISTS idx_event_ts ON macro_probabilities(event_id, timestamp DESC);
`

// DefaultHistoryDays bounds an event-history read when no window is given.
const DefaultHistoryDays = 7

// Timeseries persists probability snapshots keyed by (event_id, timestamp).
type Timeseries struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTimeseries opens the snapshot store and ensures its schema.
func NewTimeseries(db *database.DB, log zerolog.Logger) (*Timeseries, error) {
	if _, err := db.Exec(timeseriesSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize timeseries schema: %w", err)
	}
	return &Timeseries{
		db:  db,
		log: log.With().Str("component", "timeseries").Logger(),
	}, nil
}

// SaveSnapshot records one observation at the given instant. Returns false
// when a snapshot for this event and timestamp already exists.
func (t *Timeseries) SaveSnapshot(ctx context.Context, ev MacroEvent, at time.Time) (bool, error) {
	source := ev.Source
	if source == "" {
		source = eventSource
	}
	res, err := t.db.Conn().ExecContext(ctx,
		`INSERT OR IGNORE INTO macro_probabilities
		 (event_id, event_title, category, sector, related_ticker, probability_yes, volume_usd, source, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.Title, ev.Category, ev.Sector, ev.RelatedTicker,
		ev.ProbYes, ev.VolumeUSD, source, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot for %s: %w", ev.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveBatch snapshots a batch of events at one instant and returns how many
// rows were new.
func (t *Timeseries) SaveBatch(ctx context.Context, events []MacroEvent, at time.Time) (int, error) {
	saved := 0
	for _, ev := range events {
		ok, err := t.SaveSnapshot(ctx, ev, at)
		if err != nil {
			return saved, err
		}
		if ok {
			saved++
		}
	}
	t.log.Info().Int("events", len(events)).Int("new", saved).Msg("Snapshot batch saved")
	return saved, nil
}

// EventHistory returns an event's snapshots within the trailing window, in
// chronological order. days <= 0 uses the default window.
func (t *Timeseries) EventHistory(ctx context.Context, eventID string, days int) ([]Snapshot, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	rows, err := t.db.Conn().QueryContext(ctx,
		`SELECT event_id, event_title, category, sector, related_ticker, probability_yes, volume_usd, source, timestamp
		 FROM macro_probabilities
		 WHERE event_id = ? AND timestamp >= ?
		 ORDER BY timestamp ASC`, eventID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", eventID, err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// LatestProbabilities returns each event's most recent snapshot, newest
// first. limit <= 0 uses 20.
func (t *Timeseries) LatestProbabilities(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.Conn().QueryContext(ctx,
		`SELECT event_id, event_title, category, sector, related_ticker, probability_yes, volume_usd, source, MAX(timestamp)
		 FROM macro_probabilities
		 GROUP BY event_id
		 ORDER BY MAX(timestamp) DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest probabilities: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]Snapshot, error) {
	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.EventID, &s.EventTitle, &s.Category, &s.Sector, &s.RelatedTicker,
			&s.ProbYes, &s.VolumeUSD, &s.Source, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

package macro

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/database"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS market_metadata (
    event_id TEXT PRIMARY KEY,
    market_id TEXT,
    title TEXT NOT NULL,
    description TEXT,
    slug TEXT,
    tags TEXT,
    volume_usd REAL DEFAULT 0,
    end_date TEXT,
    indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE VIRTUAL TABLE IF NOT EXISTS market_fts USING fts5(
    title, description, tags, slug, event_id UNINDEXED
);
CREATE TABLE IF NOT EXISTS index_meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

const metaLastUpdated = "last_updated"

// Index is the local full-text catalog of prediction-market events.
// The FTS table and the last-updated marker are written inside each upsert
// transaction, so a search never sees a half-updated market.
type Index struct {
	db  *database.DB
	log zerolog.Logger
}

// NewIndex opens the market index and ensures its schema.
func NewIndex(db *database.DB, log zerolog.Logger) (*Index, error) {
	if _, err := db.Exec(indexSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize market index schema: %w", err)
	}
	return &Index{
		db:  db,
		log: log.With().Str("component", "market_index").Logger(),
	}, nil
}

// Upsert inserts or updates a batch of markets keyed by event ID and
// returns the number of rows applied. On update only volume and title are
// refreshed; the other fields stay as first indexed so rankings do not
// flap. The FTS row is rewritten either way.
func (ix *Index) Upsert(ctx context.Context, markets []MarketMetadata) (int, error) {
	tx, err := ix.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for _, m := range markets {
		if m.EventID == "" || m.Title == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO market_metadata (event_id, market_id, title, description, slug, tags, volume_usd, end_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(event_id) DO UPDATE SET
			     volume_usd = excluded.volume_usd,
			     title = excluded.title`,
			m.EventID, m.MarketID, m.Title, m.Description, m.Slug, m.Tags, m.VolumeUSD, m.EndDate,
		); err != nil {
			return count, fmt.Errorf("failed to upsert market %s: %w", m.EventID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM market_fts WHERE event_id = ?`, m.EventID); err != nil {
			return count, fmt.Errorf("failed to clear market fts %s: %w", m.EventID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO market_fts (title, description, tags, slug, event_id) VALUES (?, ?, ?, ?, ?)`,
			m.Title, m.Description, m.Tags, m.Slug, m.EventID,
		); err != nil {
			return count, fmt.Errorf("failed to insert market fts %s: %w", m.EventID, err)
		}
		count++
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastUpdated, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return count, fmt.Errorf("failed to stamp index update time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("failed to commit index transaction: %w", err)
	}
	return count, nil
}

// Search runs a full-text query over titles, descriptions, tags, and slugs,
// ranked by dollar volume, highest first. Queries the FTS engine rejects
// (stray quotes, operators) fall back to a plain substring match.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]MarketMetadata, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := ix.db.Conn().QueryContext(ctx,
		`SELECT m.event_id, m.market_id, m.title, m.description, m.slug, m.tags, m.volume_usd, m.end_date
		 FROM market_fts f
		 JOIN market_metadata m ON m.event_id = f.event_id
		 WHERE market_fts MATCH ?
		 ORDER BY m.volume_usd DESC, m.event_id ASC
		 LIMIT ?`, query, limit)
	if err != nil {
		ix.log.Debug().Err(err).Str("query", query).Msg("FTS query rejected, using LIKE fallback")
		return ix.searchLike(ctx, query, limit)
	}
	defer rows.Close()

	results, err := scanMarkets(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return ix.searchLike(ctx, query, limit)
	}
	return results, nil
}

func (ix *Index) searchLike(ctx context.Context, query string, limit int) ([]MarketMetadata, error) {
	query = strings.ReplaceAll(query, `"`, "")
	rows, err := ix.db.Conn().QueryContext(ctx,
		`SELECT event_id, market_id, title, description, slug, tags, volume_usd, end_date
		 FROM market_metadata
		 WHERE title LIKE '%' || ? || '%' OR tags LIKE '%' || ? || '%'
		 ORDER BY volume_usd DESC, event_id ASC
		 LIMIT ?`, query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("market search failed: %w", err)
	}
	defer rows.Close()
	return scanMarkets(rows)
}

func scanMarkets(rows *sql.Rows) ([]MarketMetadata, error) {
	var results []MarketMetadata
	for rows.Next() {
		var m MarketMetadata
		if err := rows.Scan(&m.EventID, &m.MarketID, &m.Title, &m.Description, &m.Slug,
			&m.Tags, &m.VolumeUSD, &m.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan market row: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// Get returns one market by event ID.
func (ix *Index) Get(ctx context.Context, eventID string) (*MarketMetadata, error) {
	row := ix.db.Conn().QueryRowContext(ctx,
		`SELECT event_id, market_id, title, description, slug, tags, volume_usd, end_date
		 FROM market_metadata WHERE event_id = ?`, eventID)

	var m MarketMetadata
	err := row.Scan(&m.EventID, &m.MarketID, &m.Title, &m.Description, &m.Slug,
		&m.Tags, &m.VolumeUSD, &m.EndDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", eventID, err)
	}
	return &m, nil
}

// Count returns the number of indexed markets.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := ix.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM market_metadata`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count markets: %w", err)
	}
	return count, nil
}

// IsEmpty reports whether the index holds no markets.
func (ix *Index) IsEmpty(ctx context.Context) bool {
	count, err := ix.Count(ctx)
	return err == nil && count == 0
}

// LastUpdateTime returns when the index was last upserted. The marker lives
// inside the database rather than on the file because WAL commits do not
// touch the main file's mtime.
func (ix *Index) LastUpdateTime() (time.Time, error) {
	var raw string
	err := ix.db.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, metaLastUpdated).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read index update time: %w", err)
	}
	return time.Parse(time.RFC3339, raw)
}

// IsStale reports whether the index has never been updated or has not been
// refreshed within maxAge.
func (ix *Index) IsStale(maxAge time.Duration) bool {
	updated, err := ix.LastUpdateTime()
	if err != nil || updated.IsZero() {
		return true
	}
	return time.Since(updated) > maxAge
}

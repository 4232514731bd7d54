package signals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/database"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker TEXT UNIQUE NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases TEXT DEFAULT '[]',
    last_scraped_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id),
    provider TEXT NOT NULL,
    signal_value REAL NOT NULL,
    raw_payload TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_entity_provider
    ON signals(entity_id, provider, timestamp DESC);
`

// DefaultTTL is how long a cached signal stays fresh.
const DefaultTTL = 24 * time.Hour

// Store keeps the append-only signal history and the entity catalog the
// resolver loads. Every observation is a new row; freshness is decided by
// comparing the newest row's timestamp against a TTL at read time.
// The clock is injectable so TTL expiry is testable.
type Store struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger
}

// NewStore opens the signal store and ensures its schema.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize signals schema: %w", err)
	}
	return &Store{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "signal_store").Logger(),
	}, nil
}

// SetClock overrides the store's clock. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Entity is one resolvable company.
type Entity struct {
	ID            int64     `json:"id"`
	Ticker        string    `json:"ticker"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases"`
	LastScrapedAt time.Time `json:"last_scraped_at"`
}

// Save appends an observation for the ticker and stamps the entity's
// last-scraped time, creating the entity first if the ticker is new.
// canonicalName is only used for that creation; empty falls back to the
// ticker symbol.
func (s *Store) Save(ctx context.Context, ticker string, payload *Payload, signalValue float64, canonicalName string) (*Signal, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	encoded, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	if canonicalName == "" {
		canonicalName = ticker
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin signal transaction: %w", err)
	}
	defer tx.Rollback()

	at := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (ticker, canonical_name, last_scraped_at) VALUES (?, ?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET last_scraped_at = excluded.last_scraped_at`,
		ticker, canonicalName, at); err != nil {
		return nil, fmt.Errorf("failed to upsert entity %s: %w", ticker, err)
	}

	var entityID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE ticker = ?`, ticker).Scan(&entityID); err != nil {
		return nil, fmt.Errorf("failed to look up entity %s: %w", ticker, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO signals (entity_id, provider, signal_value, raw_payload, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		entityID, payload.Provider, signalValue, encoded, at); err != nil {
		return nil, fmt.Errorf("failed to append signal for %s/%s: %w", ticker, payload.Provider, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit signal for %s: %w", ticker, err)
	}
	return &Signal{
		Ticker:      ticker,
		Provider:    payload.Provider,
		SignalValue: signalValue,
		Payload:     *payload,
		Timestamp:   at,
	}, nil
}

// GetLatest returns the newest observation for (ticker, provider) when it
// is younger than ttl. The second return is false on miss or expiry.
func (s *Store) GetLatest(ctx context.Context, ticker, provider string, ttl time.Duration) (*Signal, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT sig.signal_value, sig.raw_payload, sig.timestamp
		 FROM signals sig JOIN entities e ON e.id = sig.entity_id
		 WHERE e.ticker = ? AND sig.provider = ?
		 ORDER BY sig.timestamp DESC
		 LIMIT 1`, ticker, provider)

	var signalValue float64
	var payloadJSON string
	var at time.Time
	err := row.Scan(&signalValue, &payloadJSON, &at)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read signal cache: %w", err)
	}

	if s.now().Sub(at) > ttl {
		return nil, false, nil
	}

	payload, err := unmarshalPayload(payloadJSON)
	if err != nil {
		return nil, false, err
	}
	return &Signal{
		Ticker:      ticker,
		Provider:    provider,
		SignalValue: signalValue,
		Payload:     payload,
		Timestamp:   at.UTC(),
	}, true, nil
}

// SignalHistory returns every stored observation for (ticker, provider),
// newest first. Empty for unknown tickers.
func (s *Store) SignalHistory(ctx context.Context, ticker, provider string) ([]Signal, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT sig.signal_value, sig.raw_payload, sig.timestamp
		 FROM signals sig JOIN entities e ON e.id = sig.entity_id
		 WHERE e.ticker = ? AND sig.provider = ?
		 ORDER BY sig.timestamp DESC`, ticker, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal history: %w", err)
	}
	defer rows.Close()

	var history []Signal
	for rows.Next() {
		sig := Signal{Ticker: ticker, Provider: provider}
		var payloadJSON string
		var at time.Time
		if err := rows.Scan(&sig.SignalValue, &payloadJSON, &at); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		payload, err := unmarshalPayload(payloadJSON)
		if err != nil {
			return nil, err
		}
		sig.Payload = payload
		sig.Timestamp = at.UTC()
		history = append(history, sig)
	}
	return history, rows.Err()
}

// UpsertEntity adds or replaces a company in the entity catalog.
func (s *Store) UpsertEntity(ctx context.Context, e Entity) error {
	aliases, err := json.Marshal(e.Aliases)
	if err != nil {
		return fmt.Errorf("failed to encode aliases for %s: %w", e.Ticker, err)
	}
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO entities (ticker, canonical_name, aliases) VALUES (?, ?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET canonical_name = excluded.canonical_name, aliases = excluded.aliases`,
		e.Ticker, e.CanonicalName, string(aliases))
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.Ticker, err)
	}
	return nil
}

// ListEntities returns the catalog in insertion order.
func (s *Store) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, ticker, canonical_name, aliases, last_scraped_at FROM entities ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var aliasesJSON string
		var lastScraped sql.NullTime
		if err := rows.Scan(&e.ID, &e.Ticker, &e.CanonicalName, &aliasesJSON, &lastScraped); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := json.Unmarshal([]byte(aliasesJSON), &e.Aliases); err != nil {
			return nil, fmt.Errorf("malformed aliases for %s: %w", e.Ticker, err)
		}
		if lastScraped.Valid {
			e.LastScrapedAt = lastScraped.Time.UTC()
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Package macro maintains a local searchable index of prediction-market
// events and hydrates live probabilities for the ones that matter to a
// watched ticker.
package macro

import "time"

// MarketMetadata is one indexed prediction-market event. MarketID is the
// addressable contract used for hydration; the remaining fields feed the
// full-text index.
type MarketMetadata struct {
	EventID     string  `json:"event_id"`
	MarketID    string  `json:"market_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Slug        string  `json:"slug"`
	Tags        string  `json:"tags"` // comma-joined labels
	VolumeUSD   float64 `json:"volume_usd"`
	EndDate     string  `json:"end_date"`
}

// Outcome is one side of a market with its current price.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// MacroEvent is a hydrated market: metadata plus live outcome prices and
// the sector context it was discovered under.
type MacroEvent struct {
	EventID       string    `json:"event_id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Sector        string    `json:"sector"`
	RelatedTicker string    `json:"related_ticker"`
	Outcomes      []Outcome `json:"outcomes"`
	ProbYes       float64   `json:"probability_yes"`
	VolumeUSD     float64   `json:"volume_usd"`
	EndDate       string    `json:"end_date"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// Snapshot is one persisted probability observation for an event.
type Snapshot struct {
	EventID       string  `json:"event_id"`
	EventTitle    string  `json:"event_title"`
	Category      string  `json:"category"`
	Sector        string  `json:"sector"`
	RelatedTicker string  `json:"related_ticker"`
	ProbYes       float64 `json:"probability_yes"`
	VolumeUSD     float64 `json:"volume_usd"`
	Source        string  `json:"source"`
	Timestamp     string  `json:"timestamp"`
}

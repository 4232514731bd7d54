package macro

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const eventSource = "polymarket"

// Hydrator turns indexed market metadata into live MacroEvents by fetching
// current outcome prices from the catalog.
type Hydrator struct {
	catalog *CatalogClient
	index   *Index
	filter  *TitleFilter
	log     zerolog.Logger
}

// NewHydrator creates a hydrator. filter may be nil to disable relevance
// filtering.
func NewHydrator(catalog *CatalogClient, index *Index, filter *TitleFilter, log zerolog.Logger) *Hydrator {
	return &Hydrator{
		catalog: catalog,
		index:   index,
		filter:  filter,
		log:     log.With().Str("component", "hydrator").Logger(),
	}
}

// Hydrate fetches live prices for one event via its addressable market.
// Rows without a market ID, and markets whose outcomes do not parse, return
// nil with no error.
func (h *Hydrator) Hydrate(ctx context.Context, meta MarketMetadata) (*MacroEvent, error) {
	if meta.MarketID == "" {
		h.log.Debug().Str("event_id", meta.EventID).Msg("No addressable market, skipping")
		return nil, nil
	}
	market, err := h.catalog.FetchMarket(ctx, meta.MarketID)
	if err != nil {
		return nil, err
	}

	outcomes := parseOutcomes(market.Outcomes, market.OutcomePrices)
	if len(outcomes) == 0 {
		h.log.Debug().Str("event_id", meta.EventID).Msg("Unparseable outcomes, skipping")
		return nil, nil
	}

	return &MacroEvent{
		EventID:   meta.EventID,
		Title:     meta.Title,
		Outcomes:  outcomes,
		ProbYes:   probYes(outcomes),
		VolumeUSD: meta.VolumeUSD,
		EndDate:   meta.EndDate,
		Source:    eventSource,
		Timestamp: time.Now().UTC(),
	}, nil
}

// HydrateAll hydrates a metadata batch and attaches the sector and
// related-ticker context uniformly. Hydration failures drop the single
// event and keep the batch.
func (h *Hydrator) HydrateAll(ctx context.Context, metadata []MarketMetadata, sector, relatedTicker string) []MacroEvent {
	var events []MacroEvent
	for _, meta := range metadata {
		ev, err := h.Hydrate(ctx, meta)
		if err != nil {
			h.log.Warn().Err(err).Str("event_id", meta.EventID).Msg("Hydration failed, skipping event")
			continue
		}
		if ev == nil {
			continue
		}
		ev.Sector = sector
		ev.RelatedTicker = relatedTicker
		events = append(events, *ev)
	}
	return events
}

// FetchMacroEvents searches the index for a keyword query and hydrates the
// matches under the generic "Macro" sector. With a filter configured,
// non-investment-grade titles are dropped before hydration.
func (h *Hydrator) FetchMacroEvents(ctx context.Context, query string, limit int) ([]MacroEvent, error) {
	matches, err := h.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if h.filter != nil {
		matches = h.filter.Filter(ctx, matches)
	}
	return h.HydrateAll(ctx, matches, "Macro", ""), nil
}

// parseOutcomes decodes the catalog's stringified parallel lists, e.g.
// outcomes `["Yes","No"]` and prices `["0.62","0.38"]`. Mismatched or
// unparseable lists yield nil.
func parseOutcomes(outcomesJSON, pricesJSON string) []Outcome {
	var names []string
	if err := json.Unmarshal([]byte(outcomesJSON), &names); err != nil || len(names) == 0 {
		return nil
	}
	var prices []string
	if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil || len(prices) != len(names) {
		return nil
	}

	outcomes := make([]Outcome, 0, len(names))
	for i, name := range names {
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			return nil
		}
		outcomes = append(outcomes, Outcome{Name: name, Price: price})
	}
	return outcomes
}

// probYes is the probability of the first outcome, by catalog convention
// the "Yes" side. Markets with no outcomes read as an even coin.
func probYes(outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0.5
	}
	return outcomes[0].Price
}

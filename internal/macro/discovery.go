package macro

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// tickerTheme names a ticker's sector and the catalog keywords that drive
// its discovery searches.
type tickerTheme struct {
	sector   string
	keywords []string
}

var tickerThemes = map[string]tickerTheme{
	"NVDA":  {"AI/Chips", []string{"NVDA", "Nvidia", "AI", "Chips", "Semiconductors", "TSMC", "Blackwell", "Jensen Huang"}},
	"MSFT":  {"Software/Cloud", []string{"MSFT", "Microsoft", "OpenAI", "Azure", "Cloud", "SaaS"}},
	"AAPL":  {"Consumer Tech", []string{"AAPL", "Apple", "iPhone", "China Sales", "App Store"}},
	"TSLA":  {"Auto/Energy", []string{"TSLA", "Tesla", "Musk", "EV", "Electric Vehicles", "Charging"}},
	"META":  {"Ad/Social", []string{"META", "Facebook", "Zuckerberg", "Ads", "Instagram", "Threads"}},
	"GOOGL": {"Ad/Search", []string{"GOOGL", "Google", "Search", "Gemini", "YouTube", "Antitrust"}},
	"AMZN":  {"Retail/Cloud", []string{"AMZN", "Amazon", "AWS", "Retail", "Prime"}},
}

// macroKeywords apply regardless of ticker: rates, politics, geopolitics.
var macroKeywords = []string{
	"Fed", "Rates", "Interest Rate", "Inflation", "CPI", "GDP", "Recession", "Jerome Powell",
	"Election", "Trump", "Cabinet", "Democrat", "Republican",
	"War", "Conflict", "China", "Ukraine", "Israel", "Taiwan",
}

// DefaultMaxStale is how old the index may get before construction triggers
// a refresh.
const DefaultMaxStale = 6 * time.Hour

// KeywordsFor returns the discovery keywords for a ticker. Unknown tickers
// search on their own symbol.
func KeywordsFor(ticker string) []string {
	if theme, ok := tickerThemes[strings.ToUpper(ticker)]; ok {
		return theme.keywords
	}
	return []string{strings.ToUpper(ticker)}
}

// SectorFor returns the sector label for a ticker.
func SectorFor(ticker string) string {
	if theme, ok := tickerThemes[strings.ToUpper(ticker)]; ok {
		return theme.sector
	}
	return "Other"
}

// MacroKeywords returns the ticker-independent discovery keywords.
func MacroKeywords() []string {
	return append([]string{}, macroKeywords...)
}

// Discovery finds the prediction markets relevant to a ticker against the
// local index.
type Discovery struct {
	index    *Index
	catalog  *CatalogClient
	maxStale time.Duration
	log      zerolog.Logger
}

// NewDiscovery creates a discovery service. With autoIngest set, an empty
// or stale index is synced from the catalog before the service is returned,
// so the first search already has data. A failed sync is logged and the
// service proceeds on whatever the index holds. maxStale <= 0 uses the
// default.
func NewDiscovery(ctx context.Context, index *Index, catalog *CatalogClient, autoIngest bool, maxStale time.Duration, log zerolog.Logger) *Discovery {
	if maxStale <= 0 {
		maxStale = DefaultMaxStale
	}
	d := &Discovery{
		index:    index,
		catalog:  catalog,
		maxStale: maxStale,
		log:      log.With().Str("component", "discovery").Logger(),
	}
	if autoIngest {
		if err := d.EnsureFresh(ctx); err != nil {
			d.log.Error().Err(err).Msg("Auto-ingest failed, continuing with existing index")
		}
	}
	return d
}

// SearchTicker returns the markets relevant to a ticker: each keyword is
// searched against the index, the union is deduplicated by event ID, sorted
// by volume, and capped at limit.
func (d *Discovery) SearchTicker(ctx context.Context, ticker string, limit int) ([]MarketMetadata, error) {
	if limit <= 0 {
		limit = 10
	}

	seen := make(map[string]bool)
	var results []MarketMetadata
	for _, keyword := range KeywordsFor(ticker) {
		matches, err := d.index.Search(ctx, keyword, limit)
		if err != nil {
			d.log.Warn().Err(err).Str("keyword", keyword).Msg("Keyword search failed")
			continue
		}
		for _, m := range matches {
			if seen[m.EventID] {
				continue
			}
			seen[m.EventID] = true
			results = append(results, m)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].VolumeUSD > results[j].VolumeUSD
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// EnsureFresh syncs the index from the catalog when it is empty or stale.
func (d *Discovery) EnsureFresh(ctx context.Context) error {
	if !d.index.IsEmpty(ctx) && !d.index.IsStale(d.maxStale) {
		return nil
	}
	return d.Sync(ctx)
}

// Sync pages through the catalog by volume and upserts every event, up to
// MaxCatalogPages pages. A failed page stops paging but keeps what was
// already committed.
func (d *Discovery) Sync(ctx context.Context) error {
	d.log.Info().Msg("Syncing market index from catalog")
	total := 0
	for page := 0; page < MaxCatalogPages; page++ {
		batch, err := d.catalog.FetchEventsPage(ctx, page*CatalogPageSize, CatalogPageSize)
		if err != nil {
			if total > 0 {
				d.log.Error().Err(err).Int("events", total).Msg("Sync stopped early, keeping partial index")
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			break
		}
		n, err := d.index.Upsert(ctx, batch)
		if err != nil {
			return err
		}
		total += n
		if len(batch) < CatalogPageSize {
			break
		}
	}
	d.log.Info().Int("events", total).Msg("Market index synced")
	return nil
}

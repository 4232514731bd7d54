package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T, pages [][]map[string]any) (*CatalogClient, *int) {
	t.Helper()

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "volume", r.URL.Query().Get("order"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := offset / CatalogPageSize
		if page >= len(pages) {
			fmt.Fprint(w, "[]")
			return
		}
		json.NewEncoder(w).Encode(pages[page])
	}))
	t.Cleanup(server.Close)
	return NewCatalogClient(server.URL, zerolog.Nop()), &requests
}

func catalogPage(start, n int) []map[string]any {
	page := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		page[i] = map[string]any{
			"id":     fmt.Sprintf("ev-%04d", start+i),
			"title":  fmt.Sprintf("Will Fed rate decision %d surprise markets?", start+i),
			"volume": float64(100000 - start - i),
		}
	}
	return page
}

func TestSyncPagesUntilShortPage(t *testing.T) {
	ctx := context.Background()
	catalog, requests := newCatalogServer(t, [][]map[string]any{
		catalogPage(0, CatalogPageSize),
		catalogPage(CatalogPageSize, 40),
	})
	ix := setupIndex(t)
	d := NewDiscovery(ctx, ix, catalog, false, 0, zerolog.Nop())

	require.NoError(t, d.Sync(ctx))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, CatalogPageSize+40, count)
	assert.Equal(t, 2, *requests)
}

func TestSyncStopsAtPageCap(t *testing.T) {
	ctx := context.Background()
	pages := make([][]map[string]any, MaxCatalogPages+5)
	for i := range pages {
		pages[i] = catalogPage(i*CatalogPageSize, CatalogPageSize)
	}
	catalog, requests := newCatalogServer(t, pages)
	d := NewDiscovery(ctx, setupIndex(t), catalog, false, 0, zerolog.Nop())

	require.NoError(t, d.Sync(ctx))
	assert.Equal(t, MaxCatalogPages, *requests)
}

func TestSearchTickerDeduplicatesAcrossKeywords(t *testing.T) {
	ctx := context.Background()
	ix := setupIndex(t)
	// matches both the "NVDA" and "AI" keywords of the NVDA theme
	_, err := ix.Upsert(ctx, []MarketMetadata{
		{EventID: "ev-1", Title: "Will Nvidia AI revenue beat estimates?", VolumeUSD: 100},
		{EventID: "ev-2", Title: "Will AI chip demand slow?", VolumeUSD: 50},
	})
	require.NoError(t, err)

	catalog, _ := newCatalogServer(t, nil)
	d := NewDiscovery(ctx, ix, catalog, false, 0, zerolog.Nop())

	results, err := d.SearchTicker(ctx, "NVDA", 5)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, m := range results {
		seen[m.EventID]++
	}
	assert.Equal(t, 1, seen["ev-1"])
	assert.Equal(t, 1, seen["ev-2"])
}

func TestSearchTickerRanksUnionByVolume(t *testing.T) {
	ctx := context.Background()
	ix := setupIndex(t)
	_, err := ix.Upsert(ctx, []MarketMetadata{
		{EventID: "ev-low", Title: "Will Nvidia announce a split?", VolumeUSD: 10},
		{EventID: "ev-high", Title: "Will AI capex keep climbing?", VolumeUSD: 9000},
		{EventID: "ev-mid", Title: "Will TSMC expand Arizona output?", VolumeUSD: 500},
	})
	require.NoError(t, err)

	catalog, _ := newCatalogServer(t, nil)
	d := NewDiscovery(ctx, ix, catalog, false, 0, zerolog.Nop())

	results, err := d.SearchTicker(ctx, "NVDA", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ev-high", results[0].EventID)
	assert.Equal(t, "ev-mid", results[1].EventID)
}

func TestAutoIngestSyncsEmptyIndexAtConstruction(t *testing.T) {
	ctx := context.Background()
	catalog, requests := newCatalogServer(t, [][]map[string]any{catalogPage(0, 10)})
	ix := setupIndex(t)

	d := NewDiscovery(ctx, ix, catalog, true, DefaultMaxStale, zerolog.Nop())

	assert.Positive(t, *requests)
	assert.False(t, ix.IsEmpty(ctx))

	// the first search hits an already-populated index
	before := *requests
	results, err := d.SearchTicker(ctx, "FED", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, before, *requests)
}

func TestAutoIngestSkipsFreshIndex(t *testing.T) {
	ctx := context.Background()
	catalog, requests := newCatalogServer(t, [][]map[string]any{catalogPage(0, 10)})
	ix := setupIndex(t)
	_, err := ix.Upsert(ctx, []MarketMetadata{
		{EventID: "ev-1", Title: "Will rates fall?", VolumeUSD: 1},
	})
	require.NoError(t, err)

	NewDiscovery(ctx, ix, catalog, true, DefaultMaxStale, zerolog.Nop())
	assert.Zero(t, *requests)
}

func TestKeywordsForUnknownTickerFallsBackToSymbol(t *testing.T) {
	assert.Equal(t, []string{"ZZZZ"}, KeywordsFor("zzzz"))

	nvda := KeywordsFor("NVDA")
	assert.Contains(t, nvda, "Nvidia")
	assert.Contains(t, nvda, "Semiconductors")
}

func TestSectorForDefaultsToOther(t *testing.T) {
	assert.Equal(t, "AI/Chips", SectorFor("NVDA"))
	assert.Equal(t, "Auto/Energy", SectorFor("tsla"))
	assert.Equal(t, "Other", SectorFor("ZZZZ"))
}

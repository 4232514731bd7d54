package macro

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/database"
)

func setupTimeseries(t *testing.T) *Timeseries {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "macro.db"),
		Name: "timeseries-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts, err := NewTimeseries(db, zerolog.Nop())
	require.NoError(t, err)
	return ts
}

func TestSaveSnapshotKeyedByTimestamp(t *testing.T) {
	ts := setupTimeseries(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ev := MacroEvent{EventID: "ev-1", Title: "Will rates fall?", ProbYes: 0.62, VolumeUSD: 1000}

	saved, err := ts.SaveSnapshot(ctx, ev, at)
	require.NoError(t, err)
	assert.True(t, saved)

	// the exact same instant is a duplicate
	saved, err = ts.SaveSnapshot(ctx, ev, at)
	require.NoError(t, err)
	assert.False(t, saved)

	// a later hour the same day is a distinct observation
	saved, err = ts.SaveSnapshot(ctx, ev, at.Add(6*time.Hour))
	require.NoError(t, err)
	assert.True(t, saved)

	history, err := ts.EventHistory(ctx, "ev-1", 3650)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSnapshotCarriesEventContext(t *testing.T) {
	ts := setupTimeseries(t)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Hour)
	ev := MacroEvent{
		EventID: "ev-1", Title: "Will Blackwell ship on time?", Category: "Tech",
		Sector: "AI/Chips", RelatedTicker: "NVDA", ProbYes: 0.7, VolumeUSD: 5000,
		Source: "polymarket",
	}

	_, err := ts.SaveSnapshot(ctx, ev, at)
	require.NoError(t, err)

	history, err := ts.EventHistory(ctx, "ev-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Tech", history[0].Category)
	assert.Equal(t, "AI/Chips", history[0].Sector)
	assert.Equal(t, "NVDA", history[0].RelatedTicker)
	assert.Equal(t, "polymarket", history[0].Source)
	assert.Equal(t, at.Format(time.RFC3339), history[0].Timestamp)
}

func TestEventHistoryChronologicalWithinWindow(t *testing.T) {
	ts := setupTimeseries(t)
	ctx := context.Background()
	ev := MacroEvent{EventID: "ev-1", Title: "q", ProbYes: 0.5}
	now := time.Now().UTC()

	offsets := []time.Duration{-2 * time.Hour, -72 * time.Hour, -30 * time.Hour}
	for i, off := range offsets {
		ev.ProbYes = 0.5 + float64(i)*0.1
		_, err := ts.SaveSnapshot(ctx, ev, now.Add(off))
		require.NoError(t, err)
	}
	// outside the default seven-day window
	_, err := ts.SaveSnapshot(ctx, ev, now.AddDate(0, 0, -10))
	require.NoError(t, err)

	history, err := ts.EventHistory(ctx, "ev-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, now.Add(-72*time.Hour).Format(time.RFC3339), history[0].Timestamp)
	assert.Equal(t, now.Add(-2*time.Hour).Format(time.RFC3339), history[2].Timestamp)

	// a wider window reaches the older row
	history, err = ts.EventHistory(ctx, "ev-1", 30)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestSaveBatchCountsOnlyNewRows(t *testing.T) {
	ts := setupTimeseries(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	events := []MacroEvent{
		{EventID: "ev-1", Title: "a", ProbYes: 0.1},
		{EventID: "ev-2", Title: "b", ProbYes: 0.2},
	}

	saved, err := ts.SaveBatch(ctx, events, at)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	saved, err = ts.SaveBatch(ctx, events, at)
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
}

func TestLatestProbabilitiesNewestFirstCapped(t *testing.T) {
	ts := setupTimeseries(t)
	ctx := context.Background()

	ev := MacroEvent{EventID: "ev-1", Title: "q", ProbYes: 0.3, VolumeUSD: 10}
	_, err := ts.SaveSnapshot(ctx, ev, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	ev.ProbYes = 0.8
	_, err = ts.SaveSnapshot(ctx, ev, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	other := MacroEvent{EventID: "ev-2", Title: "r", ProbYes: 0.4}
	_, err = ts.SaveSnapshot(ctx, other, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	latest, err := ts.LatestProbabilities(ctx, 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	// newest snapshot across events leads, and each event contributes only
	// its most recent row
	assert.Equal(t, "ev-2", latest[0].EventID)
	assert.Equal(t, "ev-1", latest[1].EventID)
	assert.Equal(t, 0.8, latest[1].ProbYes)

	capped, err := ts.LatestProbabilities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "ev-2", capped[0].EventID)
}

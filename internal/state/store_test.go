package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/database"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "state.db"),
		Name: "state-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.MarkProcessed("0001045810-24-001", "NVDA", "2024-11-20"))
	require.NoError(t, store.MarkProcessed("0001045810-24-001", "NVDA", "2024-11-20"))

	count, err := store.ProcessedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	processed, err := store.IsProcessed("0001045810-24-001")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestIsProcessedUnknownAccession(t *testing.T) {
	store := setupStore(t)

	processed, err := store.IsProcessed("missing")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessedCountMonotonic(t *testing.T) {
	store := setupStore(t)

	accessions := []string{"a-1", "a-2", "a-2", "a-3"}
	prev := 0
	for _, acc := range accessions {
		require.NoError(t, store.MarkProcessed(acc, "AAPL", "2024-01-01"))
		count, err := store.ProcessedCount()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, prev)
		prev = count
	}
	assert.Equal(t, 3, prev)
}

func TestRecordSchedulerEvent(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.RecordSchedulerEvent(EventMisfire, "polling_job", "2024-11-20T10:00:00Z", "", ""))
	require.NoError(t, store.RecordSchedulerEvent(EventError, "polling_job", "2024-11-20T10:05:00Z", "boom", "stack"))

	rows, err := store.db.Query(`SELECT event_type, job_id, exception FROM scheduler_events ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var events []struct{ typ, job, exc string }
	for rows.Next() {
		var e struct{ typ, job, exc string }
		require.NoError(t, rows.Scan(&e.typ, &e.job, &e.exc))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "misfire", events[0].typ)
	assert.Equal(t, "error", events[1].typ)
	assert.Equal(t, "boom", events[1].exc)
}

func TestHandleDedup(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	h, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer h.Close()

	processed, err := h.IsProcessed(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, h.MarkProcessed(ctx, "acc-1", "NVDA", "2024-11-20"))

	processed, err = h.IsProcessed(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

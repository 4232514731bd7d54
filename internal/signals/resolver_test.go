package signals

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps known texts to fixed vectors; unknown texts get a
// default.
type stubEmbedder struct {
	vectors map[string][]float64
	def     []float64
	calls   int
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = e.def
		}
	}
	return out, nil
}

func testCatalog() []Entity {
	return []Entity{
		{Ticker: "NVDA", CanonicalName: "NVIDIA Corporation", Aliases: []string{"nvidia", "team green"}},
		{Ticker: "AMD", CanonicalName: "Advanced Micro Devices", Aliases: []string{"amd"}},
		{Ticker: "AAPL", CanonicalName: "Apple Inc.", Aliases: []string{"apple"}},
	}
}

func newTestResolver(t *testing.T, embedder Embedder, threshold float64) *HybridResolver {
	t.Helper()
	r := NewHybridResolver(embedder, threshold, zerolog.Nop())
	require.NoError(t, r.LoadEntities(context.Background(), testCatalog()))
	return r
}

func TestResolveExactAliasIsConfidenceOne(t *testing.T) {
	embedder := &stubEmbedder{def: []float64{1, 0, 0}}
	r := newTestResolver(t, embedder, 0)

	for _, mention := range []string{"nvidia", "NVIDIA", "Team Green", "nvda"} {
		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		require.NotNil(t, m, mention)
		assert.Equal(t, "NVDA", m.Ticker)
		assert.Equal(t, "NVIDIA Corporation", m.CanonicalName)
		assert.Equal(t, 1.0, m.Confidence)
		assert.Equal(t, "alias_lookup", m.Method)
	}
	// alias hits never touch the embedder beyond the initial load
	assert.Equal(t, 1, embedder.calls)
}

func TestResolveVectorMatch(t *testing.T) {
	embedder := &stubEmbedder{
		vectors: map[string][]float64{
			"NVIDIA Corporation":     {1, 0, 0},
			"Advanced Micro Devices": {0, 1, 0},
			"Apple Inc.":             {0, 0, 1},
			"the GPU maker Nvidia":   {0.9, 0.1, 0},
		},
	}
	r := newTestResolver(t, embedder, 0.35)

	m, err := r.Resolve(context.Background(), "the GPU maker Nvidia")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "NVDA", m.Ticker)
	assert.Equal(t, "pure_vector", m.Method)
	assert.Greater(t, m.Confidence, 0.35)
}

func TestResolveMatchesWithoutSharedTokens(t *testing.T) {
	// the mention shares no surface tokens with the winning entity's name,
	// so token-set matching alone would never consider it
	embedder := &stubEmbedder{
		vectors: map[string][]float64{
			"SpaceX":                 {1, 0, 0},
			"Advanced Micro Devices": {0, 1, 0},
			"Apple Inc.":             {0, 0, 1},
			"Space Exploration Corp": {0.95, 0.05, 0},
		},
	}
	r := NewHybridResolver(embedder, 0.35, zerolog.Nop())
	require.NoError(t, r.LoadEntities(context.Background(), []Entity{
		{Ticker: "SPACEX", CanonicalName: "SpaceX"},
		{Ticker: "AMD", CanonicalName: "Advanced Micro Devices"},
		{Ticker: "AAPL", CanonicalName: "Apple Inc."},
	}))

	m, err := r.Resolve(context.Background(), "Space Exploration Corp")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "SPACEX", m.Ticker)
	assert.Equal(t, "SpaceX", m.CanonicalName)
	assert.Equal(t, "pure_vector", m.Method)
	assert.Greater(t, m.Confidence, 0.9)
}

func TestResolveBelowThresholdReturnsNil(t *testing.T) {
	embedder := &stubEmbedder{
		vectors: map[string][]float64{
			"NVIDIA Corporation":     {1, 0, 0},
			"Advanced Micro Devices": {0, 1, 0},
			"Apple Inc.":             {0, 0, 1},
		},
		def: []float64{0.1, 0.1, 0.1},
	}
	r := newTestResolver(t, embedder, 0.9)

	m, err := r.Resolve(context.Background(), "some unrelated phrase")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolveTieTakesLowestIndex(t *testing.T) {
	// NVIDIA and AMD share a vector, the query matches both equally
	embedder := &stubEmbedder{
		vectors: map[string][]float64{
			"NVIDIA Corporation":     {1, 0, 0},
			"Advanced Micro Devices": {1, 0, 0},
		},
		def: []float64{1, 0, 0},
	}
	r := NewHybridResolver(embedder, 0.35, zerolog.Nop())
	require.NoError(t, r.LoadEntities(context.Background(), []Entity{
		{Ticker: "NVDA", CanonicalName: "NVIDIA Corporation"},
		{Ticker: "AMD", CanonicalName: "Advanced Micro Devices"},
	}))

	m, err := r.Resolve(context.Background(), "leading chip designer")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "NVDA", m.Ticker)
}

func TestResolveEmptyCatalogErrors(t *testing.T) {
	r := NewHybridResolver(&stubEmbedder{}, 0.35, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "nvidia")
	require.Error(t, err)
}

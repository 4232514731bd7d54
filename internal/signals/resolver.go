package signals

import (
	"context"
	"fmt"
	"strings"
	"sync"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// DefaultResolverThreshold is the minimum cosine similarity for a vector
// match.
const DefaultResolverThreshold = 0.35

// fuzzyBlockCutoff is the token-set ratio above which an entity is scored
// in the fast pass before falling back to the full catalog.
const fuzzyBlockCutoff = 50

// Embedder turns texts into comparable dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Match is one resolved mention.
type Match struct {
	Ticker        string  `json:"ticker"`
	CanonicalName string  `json:"canonical_name"`
	Confidence    float64 `json:"confidence"`
	Method        string  `json:"method"` // "alias_lookup" or "pure_vector"
}

type resolverState struct {
	entities   []Entity
	aliasIndex map[string]int // lowercased alias or name -> entity index
	vectors    [][]float64    // unit-normalized, parallel to entities
}

// HybridResolver maps free-text company mentions to tickers. Exact alias
// hits resolve with confidence 1.0; everything else is scored by embedding
// similarity against the whole catalog. Fuzzy token-set matching only picks
// which vectors to score first; a mention that shares no tokens with its
// entity's name still resolves through the full scan. Ties resolve to the
// lowest-index entity so results are deterministic.
type HybridResolver struct {
	embedder  Embedder
	threshold float64
	log       zerolog.Logger

	mu    sync.RWMutex
	state *resolverState
}

// NewHybridResolver creates a resolver. threshold <= 0 uses the default.
func NewHybridResolver(embedder Embedder, threshold float64, log zerolog.Logger) *HybridResolver {
	if threshold <= 0 {
		threshold = DefaultResolverThreshold
	}
	return &HybridResolver{
		embedder:  embedder,
		threshold: threshold,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// LoadEntities rebuilds the resolver's catalog and embeddings, then swaps
// them in atomically. In-flight Resolve calls keep the previous state.
func (r *HybridResolver) LoadEntities(ctx context.Context, entities []Entity) error {
	aliasIndex := make(map[string]int)
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.CanonicalName
		aliasIndex[strings.ToLower(e.CanonicalName)] = i
		aliasIndex[strings.ToLower(e.Ticker)] = i
		for _, alias := range e.Aliases {
			aliasIndex[strings.ToLower(alias)] = i
		}
	}

	var vectors [][]float64
	if len(entities) > 0 {
		raw, err := r.embedder.Embed(ctx, names)
		if err != nil {
			return fmt.Errorf("failed to embed entity names: %w", err)
		}
		if len(raw) != len(entities) {
			return fmt.Errorf("expected %d entity vectors, got %d", len(entities), len(raw))
		}
		vectors = make([][]float64, len(raw))
		for i, v := range raw {
			vectors[i] = normalize(v)
		}
	}

	r.mu.Lock()
	r.state = &resolverState{entities: entities, aliasIndex: aliasIndex, vectors: vectors}
	r.mu.Unlock()
	r.log.Info().Int("entities", len(entities)).Msg("Resolver entities loaded")
	return nil
}

// Resolve maps a mention to its best entity. Returns nil when nothing
// clears the similarity threshold.
func (r *HybridResolver) Resolve(ctx context.Context, mention string) (*Match, error) {
	r.mu.RLock()
	state := r.state
	r.mu.RUnlock()

	if state == nil || len(state.entities) == 0 {
		return nil, fmt.Errorf("resolver has no entities loaded")
	}

	mention = strings.TrimSpace(mention)
	if mention == "" {
		return nil, nil
	}

	if i, ok := state.aliasIndex[strings.ToLower(mention)]; ok {
		e := state.entities[i]
		return &Match{Ticker: e.Ticker, CanonicalName: e.CanonicalName, Confidence: 1.0, Method: "alias_lookup"}, nil
	}

	queryVecs, err := r.embedder.Embed(ctx, []string{mention})
	if err != nil {
		return nil, fmt.Errorf("failed to embed mention: %w", err)
	}
	query := normalize(queryVecs[0])

	blocked := fuzzyBlock(mention, state.entities)
	bestIdx, bestScore := r.bestVector(query, state, blocked)
	if bestIdx == -1 && len(blocked) < len(state.entities) {
		// mention shares no surface tokens with the winner's name, so the
		// fast pass missed it; score everything
		bestIdx, bestScore = r.bestVector(query, state, nil)
	}
	if bestIdx == -1 {
		return nil, nil
	}

	e := state.entities[bestIdx]
	return &Match{Ticker: e.Ticker, CanonicalName: e.CanonicalName, Confidence: bestScore, Method: "pure_vector"}, nil
}

// bestVector scores the given candidate indices, or the whole catalog when
// candidates is nil, and returns the best index above the threshold.
func (r *HybridResolver) bestVector(query []float64, state *resolverState, candidates []int) (int, float64) {
	if candidates == nil {
		candidates = make([]int, len(state.vectors))
		for i := range candidates {
			candidates[i] = i
		}
	}

	bestIdx := -1
	bestScore := r.threshold
	for _, i := range candidates {
		if i >= len(state.vectors) {
			continue
		}
		score := floats.Dot(query, state.vectors[i])
		// strictly greater keeps the lowest index on ties
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx, bestScore
}

// fuzzyBlock returns the indices of entities whose name clears the
// token-set ratio cutoff, in catalog order.
func fuzzyBlock(mention string, entities []Entity) []int {
	candidates := []int{}
	for i, e := range entities {
		if fuzzy.TokenSetRatio(mention, e.CanonicalName) >= fuzzyBlockCutoff {
			candidates = append(candidates, i)
		}
	}
	return candidates
}

func normalize(v []float64) []float64 {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

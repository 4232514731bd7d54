package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service is the read-through signal cache: cache hit within TTL returns
// the stored observation, a miss fetches from the provider and stores the
// result.
type Service struct {
	store     *Store
	providers map[string]Provider
	ttl       time.Duration
	log       zerolog.Logger
}

// NewService creates the signal service. ttl <= 0 uses the default.
func NewService(store *Store, providers map[string]Provider, ttl time.Duration, log zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:     store,
		providers: providers,
		ttl:       ttl,
		log:       log.With().Str("component", "signals").Logger(),
	}
}

// GetSignal returns the current observation for (ticker, provider).
func (s *Service) GetSignal(ctx context.Context, ticker, provider string) (*Signal, error) {
	cached, ok, err := s.store.GetLatest(ctx, ticker, provider, s.ttl)
	if err != nil {
		return nil, err
	}
	if ok {
		s.log.Debug().Str("ticker", ticker).Str("provider", provider).Msg("Signal cache hit")
		return cached, nil
	}

	p, exists := s.providers[provider]
	if !exists {
		return nil, fmt.Errorf("unknown signal provider %q", provider)
	}

	s.log.Info().Str("ticker", ticker).Str("provider", provider).Msg("Signal cache miss, fetching")
	payload, err := p.Fetch(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("signal fetch failed for %s/%s: %w", ticker, provider, err)
	}
	return s.store.Save(ctx, ticker, payload, payload.Value(), "")
}

// GetAllSignals fetches every provider's observation for a ticker.
// Per-provider failures are logged and the partial map is returned.
func (s *Service) GetAllSignals(ctx context.Context, ticker string) map[string]*Signal {
	results := make(map[string]*Signal, len(s.providers))
	for key := range s.providers {
		sig, err := s.GetSignal(ctx, ticker, key)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Str("provider", key).Msg("Signal unavailable")
			continue
		}
		results[key] = sig
	}
	return results
}

// Providers lists the configured provider keys.
func (s *Service) Providers() []string {
	keys := make([]string, 0, len(s.providers))
	for key := range s.providers {
		keys = append(keys, key)
	}
	return keys
}

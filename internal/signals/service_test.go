package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	provider string
	calls    int
	err      error
}

func (p *countingProvider) Name() string { return p.provider }

func (p *countingProvider) Fetch(_ context.Context, _ string) (*Payload, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Payload{
		Provider: p.provider,
		Hiring:   &HiringSignal{OpenRoles: 100 * p.calls},
	}, nil
}

func TestGetSignalReadThrough(t *testing.T) {
	store := setupSignalStore(t)
	base := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	provider := &countingProvider{provider: ProviderHiring}
	svc := NewService(store, map[string]Provider{ProviderHiring: provider}, DefaultTTL, zerolog.Nop())
	ctx := context.Background()

	sig, err := svc.GetSignal(ctx, "NVDA", ProviderHiring)
	require.NoError(t, err)
	assert.Equal(t, 100, sig.Payload.Hiring.OpenRoles)
	assert.Equal(t, 1, provider.calls)

	// second read inside the TTL is served from cache
	sig, err = svc.GetSignal(ctx, "NVDA", ProviderHiring)
	require.NoError(t, err)
	assert.Equal(t, 100, sig.Payload.Hiring.OpenRoles)
	assert.Equal(t, 1, provider.calls)

	// expiry triggers a refetch
	store.SetClock(func() time.Time { return base.Add(25 * time.Hour) })
	sig, err = svc.GetSignal(ctx, "NVDA", ProviderHiring)
	require.NoError(t, err)
	assert.Equal(t, 200, sig.Payload.Hiring.OpenRoles)
	assert.Equal(t, 2, provider.calls)
}

func TestGetSignalUnknownProvider(t *testing.T) {
	svc := NewService(setupSignalStore(t), map[string]Provider{}, DefaultTTL, zerolog.Nop())

	_, err := svc.GetSignal(context.Background(), "NVDA", "weather")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signal provider")
}

func TestGetAllSignalsPartialOnFailure(t *testing.T) {
	store := setupSignalStore(t)
	providers := map[string]Provider{
		ProviderHiring:   &countingProvider{provider: ProviderHiring},
		ProviderShipping: &countingProvider{provider: ProviderShipping, err: errors.New("vendor down")},
	}
	svc := NewService(store, providers, DefaultTTL, zerolog.Nop())

	results := svc.GetAllSignals(context.Background(), "NVDA")
	assert.Contains(t, results, ProviderHiring)
	assert.NotContains(t, results, ProviderShipping)
}

func TestSimulatedProviderStableWithinDay(t *testing.T) {
	p := NewSimulatedProvider(ProviderShipping)
	day := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return day }

	first, err := p.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	require.NoError(t, first.Validate())

	p.now = func() time.Time { return day.Add(5 * time.Hour) }
	second, err := p.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, first.Shipping, second.Shipping)

	other, err := p.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.NotEqual(t, first.Shipping, other.Shipping)
}

func TestSimulatedProvidersCoverAllVariants(t *testing.T) {
	providers := NewProviders(false, "", zerolog.Nop())
	require.Len(t, providers, 4)

	for key, p := range providers {
		payload, err := p.Fetch(context.Background(), "NVDA")
		require.NoError(t, err)
		assert.Equal(t, key, payload.Provider)
		require.NoError(t, payload.Validate())
	}
}

package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Provider produces one observation for a ticker.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (*Payload, error)
}

// SimulatedProvider generates plausible deterministic observations. The
// values are seeded by (ticker, provider, day) so repeated fetches within a
// day agree and tests are stable.
type SimulatedProvider struct {
	provider string
	now      func() time.Time
}

// NewSimulatedProvider creates a simulated provider for one provider key.
func NewSimulatedProvider(provider string) *SimulatedProvider {
	return &SimulatedProvider{provider: provider, now: time.Now}
}

// Name returns the provider key.
func (p *SimulatedProvider) Name() string { return p.provider }

// Fetch generates the observation.
func (p *SimulatedProvider) Fetch(_ context.Context, ticker string) (*Payload, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", ticker, p.provider, p.now().UTC().Format("2006-01-02"))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	payload := &Payload{Provider: p.provider}
	switch p.provider {
	case ProviderHiring:
		payload.Hiring = &HiringSignal{
			OpenRoles:      50 + rng.Intn(2000),
			EngineeringPct: 10 + rng.Float64()*60,
			TrendPct30d:    rng.Float64()*40 - 20,
		}
	case ProviderShipping:
		payload.Shipping = &ShippingSignal{
			ContainerImports: 100 + rng.Intn(5000),
			YoYChangePct:     rng.Float64()*60 - 30,
		}
	case ProviderDigital:
		payload.Digital = &DigitalSignal{
			WebTrafficIndex: 40 + rng.Float64()*120,
			AppDownloads:    1000 + rng.Intn(500000),
			MoMChangePct:    rng.Float64()*30 - 15,
		}
	case ProviderSocial:
		payload.Social = &SocialSignal{
			MentionCount:   100 + rng.Intn(50000),
			SentimentScore: rng.Float64()*2 - 1,
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", p.provider)
	}
	return payload, nil
}

// LiveProvider fetches observations from a vendor HTTP endpoint serving
// Payload JSON at {base}/{provider}/{ticker}.
type LiveProvider struct {
	provider string
	baseURL  string
	client   *http.Client
	log      zerolog.Logger
}

// NewLiveProvider creates a live provider.
func NewLiveProvider(provider, baseURL string, log zerolog.Logger) *LiveProvider {
	return &LiveProvider{
		provider: provider,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log.With().Str("provider", provider).Logger(),
	}
}

// Name returns the provider key.
func (p *LiveProvider) Name() string { return p.provider }

// Fetch pulls and validates the vendor payload.
func (p *LiveProvider) Fetch(ctx context.Context, ticker string) (*Payload, error) {
	url := fmt.Sprintf("%s/%s/%s", p.baseURL, p.provider, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signal fetch %s/%s: %w", p.provider, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal fetch %s/%s returned status %d", p.provider, ticker, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed signal payload: %w", err)
	}
	if payload.Provider == "" {
		payload.Provider = p.provider
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewProviders builds the full provider set. With live enabled and a base
// URL configured the vendor endpoints are used; otherwise observations are
// simulated.
func NewProviders(live bool, baseURL string, log zerolog.Logger) map[string]Provider {
	keys := []string{ProviderHiring, ProviderShipping, ProviderDigital, ProviderSocial}
	providers := make(map[string]Provider, len(keys))
	for _, key := range keys {
		if live && baseURL != "" {
			providers[key] = NewLiveProvider(key, baseURL, log)
		} else {
			providers[key] = NewSimulatedProvider(key)
		}
	}
	return providers
}

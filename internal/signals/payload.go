// Package signals caches alternative-data observations per ticker and
// resolves free-text entity mentions to tickers.
package signals

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provider keys. The payload variant is discriminated by this value.
const (
	ProviderHiring   = "hiring"
	ProviderShipping = "shipping"
	ProviderDigital  = "digital"
	ProviderSocial   = "social"
)

// HiringSignal summarizes a company's open-roles footprint.
type HiringSignal struct {
	OpenRoles      int     `json:"open_roles"`
	EngineeringPct float64 `json:"engineering_pct"`
	TrendPct30d    float64 `json:"trend_pct_30d"`
}

// ShippingSignal summarizes container import activity.
type ShippingSignal struct {
	ContainerImports int     `json:"container_imports"`
	YoYChangePct     float64 `json:"yoy_change_pct"`
}

// DigitalSignal summarizes web and app engagement.
type DigitalSignal struct {
	WebTrafficIndex float64 `json:"web_traffic_index"`
	AppDownloads    int     `json:"app_downloads"`
	MoMChangePct    float64 `json:"mom_change_pct"`
}

// SocialSignal summarizes social-media chatter.
type SocialSignal struct {
	MentionCount   int     `json:"mention_count"`
	SentimentScore float64 `json:"sentiment_score"` // -1..1
}

// Payload is the tagged union of provider observations. Exactly one
// variant is set, matching Provider.
type Payload struct {
	Provider string          `json:"provider"`
	Hiring   *HiringSignal   `json:"hiring,omitempty"`
	Shipping *ShippingSignal `json:"shipping,omitempty"`
	Digital  *DigitalSignal  `json:"digital,omitempty"`
	Social   *SocialSignal   `json:"social,omitempty"`
}

// Validate checks that the set variant matches the discriminator.
func (p *Payload) Validate() error {
	var want bool
	switch p.Provider {
	case ProviderHiring:
		want = p.Hiring != nil
	case ProviderShipping:
		want = p.Shipping != nil
	case ProviderDigital:
		want = p.Digital != nil
	case ProviderSocial:
		want = p.Social != nil
	default:
		return fmt.Errorf("unknown provider %q", p.Provider)
	}
	if !want {
		return fmt.Errorf("payload variant missing for provider %q", p.Provider)
	}
	return nil
}

// Value reduces the payload to its headline scalar: hiring velocity,
// import volume, traffic index, or sentiment. Used as the stored
// signal_value so rows are comparable without decoding the raw payload.
func (p *Payload) Value() float64 {
	switch {
	case p.Hiring != nil:
		return p.Hiring.TrendPct30d
	case p.Shipping != nil:
		return float64(p.Shipping.ContainerImports)
	case p.Digital != nil:
		return p.Digital.WebTrafficIndex
	case p.Social != nil:
		return p.Social.SentimentScore
	}
	return 0
}

// Signal is a stored observation: a payload plus its cache metadata.
type Signal struct {
	Ticker      string    `json:"ticker"`
	Provider    string    `json:"provider"`
	SignalValue float64   `json:"signal_value"`
	Payload     Payload   `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
}

func marshalPayload(p *Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode signal payload: %w", err)
	}
	return string(data), nil
}

func unmarshalPayload(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("failed to decode signal payload: %w", err)
	}
	return p, nil
}

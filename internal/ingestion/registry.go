package ingestion

import (
	"context"
	"strings"
)

// Adapter is the two-operation contract every market client implements.
// GetLatestFilings returns partial results on per-ticker errors rather than
// failing the batch. GetFilingText returns "" (and no error) when the
// payload has no readable content.
type Adapter interface {
	GetLatestFilings(ctx context.Context, tickers []string, limit int) ([]Filing, error)
	GetFilingText(ctx context.Context, f Filing) (string, error)
}

// Market keys used for grouping and routing.
const (
	MarketEdgar = "edgar"
	MarketNSE   = "nse"
)

// Registry routes tickers to market adapters by suffix. A ".NS" suffix
// routes to the Indian adapter; everything else goes to the default (U.S.)
// adapter. New markets register a suffix -> adapter pair.
type Registry struct {
	suffixes   map[string]string // ticker suffix -> market key
	adapters   map[string]Adapter
	defaultKey string
}

// NewRegistry builds a registry with the two built-in markets.
func NewRegistry(edgar, nse Adapter) *Registry {
	return &Registry{
		suffixes:   map[string]string{".NS": MarketNSE},
		adapters:   map[string]Adapter{MarketEdgar: edgar, MarketNSE: nse},
		defaultKey: MarketEdgar,
	}
}

// Register adds (or replaces) a market reachable via the given ticker suffix.
func (r *Registry) Register(suffix, marketKey string, a Adapter) {
	r.suffixes[suffix] = marketKey
	r.adapters[marketKey] = a
}

// marketFor returns the market key for a ticker.
func (r *Registry) marketFor(ticker string) string {
	for suffix, key := range r.suffixes {
		if strings.HasSuffix(ticker, suffix) {
			return key
		}
	}
	return r.defaultKey
}

// GetClient returns the adapter responsible for a ticker.
func (r *Registry) GetClient(ticker string) Adapter {
	return r.adapters[r.marketFor(ticker)]
}

// AdapterFor returns the adapter for a market key, or nil.
func (r *Registry) AdapterFor(marketKey string) Adapter {
	return r.adapters[marketKey]
}

// GroupTickersByMarket partitions a mixed ticker list so the engine can
// batch one fetch per adapter. Every known market appears in the result,
// possibly with an empty group.
func (r *Registry) GroupTickersByMarket(tickers []string) map[string][]string {
	groups := make(map[string][]string, len(r.adapters))
	for key := range r.adapters {
		groups[key] = nil
	}
	for _, t := range tickers {
		key := r.marketFor(t)
		groups[key] = append(groups[key], t)
	}
	return groups
}

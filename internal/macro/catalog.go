package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGammaBase is the public catalog API for Polymarket events.
const DefaultGammaBase = "https://gamma-api.polymarket.com"

// CatalogPageSize is the page size used when syncing the local index.
const CatalogPageSize = 100

// MaxCatalogPages caps a full sync at 20 pages (2000 events).
const MaxCatalogPages = 20

// CatalogClient reads the upstream prediction-market catalog.
type CatalogClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewCatalogClient creates a catalog client. baseURL may be empty for the
// public endpoint.
func NewCatalogClient(baseURL string, log zerolog.Logger) *CatalogClient {
	if baseURL == "" {
		baseURL = DefaultGammaBase
	}
	return &CatalogClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "gamma").Logger(),
	}
}

// gammaEvent mirrors the subset of the upstream event document we consume.
// Numeric fields arrive as either numbers or strings depending on endpoint
// age, so they are decoded leniently.
type gammaEvent struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Slug        string          `json:"slug"`
	EndDate     string          `json:"endDate"`
	Volume      json.RawMessage `json:"volume"`
	Tags        []gammaTag      `json:"tags"`
	Markets     []gammaMarket   `json:"markets"`
}

type gammaTag struct {
	Label string `json:"label"`
}

type gammaMarket struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Outcomes      string          `json:"outcomes"`
	OutcomePrices string          `json:"outcomePrices"`
	Volume        json.RawMessage `json:"volume"`
}

// FetchEventsPage returns one page of open events ordered by volume,
// highest first. The first market's ID becomes the addressable contract
// for later hydration.
func (c *CatalogClient) FetchEventsPage(ctx context.Context, offset, limit int) ([]MarketMetadata, error) {
	if limit <= 0 {
		limit = CatalogPageSize
	}

	q := url.Values{}
	q.Set("closed", "false")
	q.Set("order", "volume")
	q.Set("ascending", "false")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var events []gammaEvent
	if err := c.getJSON(ctx, c.baseURL+"/events?"+q.Encode(), &events); err != nil {
		return nil, fmt.Errorf("catalog page fetch at offset %d: %w", offset, err)
	}

	results := make([]MarketMetadata, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" || ev.Title == "" {
			continue
		}
		marketID := ""
		if len(ev.Markets) > 0 {
			marketID = ev.Markets[0].ID
		}
		results = append(results, MarketMetadata{
			EventID:     ev.ID,
			MarketID:    marketID,
			Title:       ev.Title,
			Description: ev.Description,
			Slug:        ev.Slug,
			Tags:        joinTags(ev.Tags),
			VolumeUSD:   lenientFloat(ev.Volume),
			EndDate:     ev.EndDate,
		})
	}
	return results, nil
}

// FetchMarket returns one market document with its current outcome prices.
func (c *CatalogClient) FetchMarket(ctx context.Context, marketID string) (*gammaMarket, error) {
	var m gammaMarket
	if err := c.getJSON(ctx, c.baseURL+"/markets/"+url.PathEscape(marketID), &m); err != nil {
		return nil, fmt.Errorf("market fetch %s: %w", marketID, err)
	}
	return &m, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func joinTags(tags []gammaTag) string {
	labels := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Label != "" {
			labels = append(labels, t.Label)
		}
	}
	return strings.Join(labels, ", ")
}

// lenientFloat decodes a JSON number that may arrive quoted.
func lenientFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// NSEAdapter ingests corporate announcements for National Stock Exchange of
// India tickers from the exchange's RSS feed. NSE tickers carry a ".NS"
// suffix; the feed matches on the bare symbol.
type NSEAdapter struct {
	feedURL string
	parser  *gofeed.Parser
	client  *http.Client
	log     zerolog.Logger
}

type nsePayload struct {
	description string
	summary     string
	link        string
}

// NewNSEAdapter creates an NSE RSS adapter.
func NewNSEAdapter(feedURL, userAgent string, log zerolog.Logger) *NSEAdapter {
	client := &http.Client{Timeout: 30 * time.Second}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &NSEAdapter{
		feedURL: feedURL,
		parser:  parser,
		client:  client,
		log:     log.With().Str("client", "nse").Logger(),
	}
}

// GetLatestFilings scans the announcements feed for entries mentioning any
// of the given tickers. Feed errors return the empty partial result.
func (a *NSEAdapter) GetLatestFilings(ctx context.Context, tickers []string, limit int) ([]Filing, error) {
	if limit <= 0 {
		limit = 5
	}

	feed, err := a.parser.ParseURLWithContext(a.feedURL, ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed fetching NSE RSS feed")
		return nil, nil
	}

	var results []Filing
	scan := limit * 2
	if scan > len(feed.Items) {
		scan = len(feed.Items)
	}
	for _, item := range feed.Items[:scan] {
		matched := matchTicker(item.Title, tickers)
		if matched == "" {
			continue
		}

		accession := item.GUID
		if accession == "" {
			accession = item.Link
		}
		results = append(results, Filing{
			Ticker:          matched,
			AccessionNumber: accession,
			FilingDate:      item.Published,
			Form:            "Corporate Announcement",
			URL:             item.Link,
			Payload: nsePayload{
				description: item.Description,
				summary:     item.Content,
				link:        item.Link,
			},
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// GetFilingText concatenates the announcement's description and summary.
// When the entry links a PDF the file is downloaded to a temp path and a
// [PDF_DOWNLOADED: <path>] marker is spliced in for the extractor.
func (a *NSEAdapter) GetFilingText(ctx context.Context, f Filing) (string, error) {
	payload, ok := f.Payload.(nsePayload)
	if !ok {
		return "", nil
	}

	var sb strings.Builder
	if payload.description != "" {
		sb.WriteString(payload.description)
		sb.WriteString("\n")
	}
	if payload.summary != "" {
		sb.WriteString(payload.summary)
		sb.WriteString("\n")
	}

	if strings.HasSuffix(strings.ToLower(payload.link), ".pdf") {
		a.log.Info().Str("url", payload.link).Msg("Downloading announcement PDF")
		path, err := downloadPDF(ctx, a.client, payload.link)
		if err != nil {
			a.log.Warn().Err(err).Str("url", payload.link).Msg("PDF download failed")
			sb.WriteString("\n[PDF_DOWNLOAD_FAILED]")
		} else {
			sb.WriteString(fmt.Sprintf("\n[PDF_DOWNLOADED: %s]", path))
		}
	}

	text := strings.TrimSpace(sb.String())
	return text, nil
}

// matchTicker returns the first ticker whose bare symbol appears in the
// announcement title.
func matchTicker(title string, tickers []string) string {
	for _, t := range tickers {
		clean := strings.TrimSuffix(t, ".NS")
		if clean != "" && strings.Contains(title, clean) {
			return t
		}
	}
	return ""
}

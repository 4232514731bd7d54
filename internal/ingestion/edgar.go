package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// EdgarAdapter fetches 8-K filings from the SEC EDGAR REST API.
// The SEC requires a descriptive identity header on every request.
type EdgarAdapter struct {
	client          *http.Client
	identity        string
	log             zerolog.Logger
	tickerMapURL    string
	submissionsBase string
	archivesBase    string
	converter       *md.Converter

	mu          sync.Mutex
	cikByTicker map[string]string // upper-cased ticker -> zero-padded CIK
}

type edgarPayload struct {
	cik             string
	accession       string
	primaryDocument string
}

// NewEdgarAdapter creates an EDGAR adapter.
func NewEdgarAdapter(identity string, log zerolog.Logger) *EdgarAdapter {
	return &EdgarAdapter{
		client:          &http.Client{Timeout: 30 * time.Second},
		identity:        identity,
		log:             log.With().Str("client", "edgar").Logger(),
		tickerMapURL:    "https://www.sec.gov/files/company_tickers.json",
		submissionsBase: "https://data.sec.gov",
		archivesBase:    "https://www.sec.gov",
		converter:       md.NewConverter("", true, nil),
	}
}

// SetBaseURLs overrides the upstream endpoints. Used by tests.
func (a *EdgarAdapter) SetBaseURLs(tickerMapURL, submissionsBase, archivesBase string) {
	a.tickerMapURL = tickerMapURL
	a.submissionsBase = submissionsBase
	a.archivesBase = archivesBase
}

// GetLatestFilings fetches the latest 8-K filings for the given tickers.
// Per-ticker failures are logged and the partial batch is returned.
func (a *EdgarAdapter) GetLatestFilings(ctx context.Context, tickers []string, limit int) ([]Filing, error) {
	if limit <= 0 {
		limit = 5
	}

	var results []Filing
	for _, ticker := range tickers {
		filings, err := a.latestForTicker(ctx, ticker, limit)
		if err != nil {
			a.log.Error().Err(err).Str("ticker", ticker).Msg("Failed fetching filings")
			continue
		}
		results = append(results, filings...)
	}
	return results, nil
}

func (a *EdgarAdapter) latestForTicker(ctx context.Context, ticker string, limit int) ([]Filing, error) {
	cik, err := a.cik(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var submissions struct {
		Filings struct {
			Recent struct {
				AccessionNumber []string `json:"accessionNumber"`
				FilingDate      []string `json:"filingDate"`
				Form            []string `json:"form"`
				PrimaryDocument []string `json:"primaryDocument"`
			} `json:"recent"`
		} `json:"filings"`
	}
	url := fmt.Sprintf("%s/submissions/CIK%s.json", a.submissionsBase, cik)
	if err := a.getJSON(ctx, url, &submissions); err != nil {
		return nil, fmt.Errorf("submissions fetch for %s: %w", ticker, err)
	}

	recent := submissions.Filings.Recent
	var filings []Filing
	for i := range recent.AccessionNumber {
		if i >= len(recent.Form) || recent.Form[i] != "8-K" {
			continue
		}
		accession := recent.AccessionNumber[i]
		primary := ""
		if i < len(recent.PrimaryDocument) {
			primary = recent.PrimaryDocument[i]
		}
		filingDate := ""
		if i < len(recent.FilingDate) {
			filingDate = recent.FilingDate[i]
		}
		filings = append(filings, Filing{
			Ticker:          ticker,
			AccessionNumber: accession,
			FilingDate:      filingDate,
			Form:            "8-K",
			URL:             a.documentURL(cik, accession, primary),
			Payload: edgarPayload{
				cik:             cik,
				accession:       accession,
				primaryDocument: primary,
			},
		})
		if len(filings) >= limit {
			break
		}
	}
	return filings, nil
}

// GetFilingText fetches the filing's primary document and converts it for
// LLM consumption, Markdown > HTML > plaintext. A recognizable EX-99.1
// press-release exhibit is appended, best-effort.
func (a *EdgarAdapter) GetFilingText(ctx context.Context, f Filing) (string, error) {
	payload, ok := f.Payload.(edgarPayload)
	if !ok || payload.primaryDocument == "" {
		return "", nil
	}

	body, err := a.getBody(ctx, a.documentURL(payload.cik, payload.accession, payload.primaryDocument))
	if err != nil {
		return "", fmt.Errorf("primary document fetch: %w", err)
	}

	content := a.renderDocument(body)
	if content == "" {
		return "", nil
	}

	if exhibit := a.fetchPressReleaseExhibit(ctx, payload); exhibit != "" {
		content += "\n\n--- EXHIBIT 99.1 ---\n" + exhibit
	}
	return content, nil
}

// renderDocument converts an EDGAR document body to the richest readable
// form available.
func (a *EdgarAdapter) renderDocument(body string) string {
	if !strings.Contains(body, "<") {
		return strings.TrimSpace(body)
	}
	if markdown, err := a.converter.ConvertString(body); err == nil && strings.TrimSpace(markdown) != "" {
		return strings.TrimSpace(markdown)
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(body)
}

// fetchPressReleaseExhibit scans the filing's index page for an EX-99.1
// attachment (the earnings press release) and returns its rendered text.
func (a *EdgarAdapter) fetchPressReleaseExhibit(ctx context.Context, payload edgarPayload) string {
	indexURL := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s-index.htm",
		a.archivesBase, strings.TrimLeft(payload.cik, "0"), stripDashes(payload.accession), payload.accession)

	body, err := a.getBody(ctx, indexURL)
	if err != nil {
		a.log.Debug().Err(err).Msg("No filing index page")
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var href string
	doc.Find("table.tableFile tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return true
		}
		desc := strings.ToUpper(strings.TrimSpace(cells.Eq(1).Text()))
		typ := strings.ToUpper(strings.TrimSpace(cells.Eq(3).Text()))
		if strings.HasPrefix(typ, "EX-99.1") || strings.Contains(desc, "PRESS RELEASE") {
			href, _ = cells.Eq(2).Find("a").Attr("href")
			return false
		}
		return true
	})
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		href = a.archivesBase + href
	}

	a.log.Info().Str("url", href).Msg("Found Exhibit 99.1 press release, appending")
	exhibitBody, err := a.getBody(ctx, href)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to fetch exhibit")
		return ""
	}
	return a.renderDocument(exhibitBody)
}

// cik resolves a ticker to its zero-padded CIK, caching the SEC's company
// ticker map on first use.
func (a *EdgarAdapter) cik(ctx context.Context, ticker string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cikByTicker == nil {
		var raw map[string]struct {
			CIK    int    `json:"cik_str"`
			Ticker string `json:"ticker"`
		}
		if err := a.getJSON(ctx, a.tickerMapURL, &raw); err != nil {
			return "", fmt.Errorf("company ticker map fetch: %w", err)
		}
		a.cikByTicker = make(map[string]string, len(raw))
		for _, entry := range raw {
			a.cikByTicker[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
		}
	}

	cik, ok := a.cikByTicker[strings.ToUpper(ticker)]
	if !ok {
		return "", fmt.Errorf("unknown ticker %s", ticker)
	}
	return cik, nil
}

func (a *EdgarAdapter) documentURL(cik, accession, primaryDocument string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		a.archivesBase, strings.TrimLeft(cik, "0"), stripDashes(accession), primaryDocument)
}

func (a *EdgarAdapter) getJSON(ctx context.Context, url string, out any) error {
	body, err := a.getBody(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (a *EdgarAdapter) getBody(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", a.identity)
	req.Header.Set("Accept", "*/*")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stripDashes(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

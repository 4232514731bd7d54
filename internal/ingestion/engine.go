package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/meridian/internal/extraction"
	"github.com/meridianhq/meridian/internal/state"
)

// Extractor turns filing text into a structured report.
type Extractor interface {
	Extract(ctx context.Context, text, ticker string) (*extraction.Report, error)
}

// Notifier announces a freshly written report. Delivery is best-effort.
type Notifier interface {
	SendReportAlert(ctx context.Context, report *extraction.Report, reportPath string) error
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Engine runs one polling cycle: route tickers to market adapters, fetch
// the latest filings, and process each new filing exactly once.
type Engine struct {
	registry   *Registry
	state      *state.Store
	extractor  Extractor
	notifier   Notifier
	reportsDir string
	maxWorkers int
	fetchLimit int
	log        zerolog.Logger
}

// EngineConfig collects the polling engine's dependencies.
type EngineConfig struct {
	Registry   *Registry
	State      *state.Store
	Extractor  Extractor
	Notifier   Notifier
	ReportsDir string
	MaxWorkers int
	FetchLimit int
}

// NewEngine creates a polling engine. MaxWorkers defaults to
// min(32, GOMAXPROCS+4); FetchLimit defaults to 5.
func NewEngine(cfg EngineConfig, log zerolog.Logger) *Engine {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) + 4
		if workers > 32 {
			workers = 32
		}
	}
	limit := cfg.FetchLimit
	if limit <= 0 {
		limit = 5
	}
	return &Engine{
		registry:   cfg.Registry,
		state:      cfg.State,
		extractor:  cfg.Extractor,
		notifier:   cfg.Notifier,
		reportsDir: cfg.ReportsDir,
		maxWorkers: workers,
		fetchLimit: limit,
		log:        log.With().Str("component", "polling-engine").Logger(),
	}
}

// RunOnce executes a single polling cycle for the given tickers. Adapter
// failures are logged and the cycle continues with the remaining markets.
func (e *Engine) RunOnce(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}

	groups := e.registry.GroupTickersByMarket(tickers)
	var filings []Filing
	for market, group := range groups {
		if len(group) == 0 {
			continue
		}
		adapter := e.registry.AdapterFor(market)
		if adapter == nil {
			e.log.Error().Str("market", market).Msg("No adapter for market")
			continue
		}
		batch, err := adapter.GetLatestFilings(ctx, group, e.fetchLimit)
		if err != nil {
			e.log.Error().Err(err).Str("market", market).Strs("tickers", group).
				Msg("Failed fetching filings for market")
			continue
		}
		filings = append(filings, batch...)
	}

	e.log.Info().Int("filings", len(filings)).Int("tickers", len(tickers)).
		Msg("Polling cycle fetched filings")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for _, f := range filings {
		filing := f
		g.Go(func() error {
			e.processFiling(gctx, filing)
			return nil
		})
	}
	return g.Wait()
}

// processFiling runs the per-filing pipeline. Panics are contained so one
// bad filing cannot take down the cycle.
func (e *Engine) processFiling(ctx context.Context, f Filing) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("accession", f.AccessionNumber).
				Msg("Recovered panic while processing filing")
		}
	}()

	if !f.Valid() {
		e.log.Warn().Str("ticker", f.Ticker).Msg("Skipping malformed filing")
		return
	}

	handle, err := e.state.Acquire(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("accession", f.AccessionNumber).
			Msg("Failed acquiring state handle")
		return
	}
	defer handle.Close()

	processed, err := handle.IsProcessed(ctx, f.AccessionNumber)
	if err != nil {
		e.log.Error().Err(err).Str("accession", f.AccessionNumber).
			Msg("Dedup lookup failed")
		return
	}
	if processed {
		e.log.Debug().Str("accession", f.AccessionNumber).Msg("Filing already processed")
		return
	}

	e.log.Info().Str("ticker", f.Ticker).Str("form", f.Form).
		Str("accession", f.AccessionNumber).Msg("Processing new filing")

	adapter := e.registry.GetClient(f.Ticker)
	text, err := adapter.GetFilingText(ctx, f)
	if err != nil || strings.TrimSpace(text) == "" {
		e.log.Warn().Err(err).Str("accession", f.AccessionNumber).
			Msg("No filing text, marking processed to avoid retry loop")
		e.markProcessed(ctx, handle, f)
		return
	}

	report, err := e.extractor.Extract(ctx, text, f.Ticker)
	if err != nil {
		e.log.Warn().Err(err).Str("accession", f.AccessionNumber).
			Msg("Extraction failed, marking processed to avoid retry loop")
		e.markProcessed(ctx, handle, f)
		return
	}

	path, err := e.writeReport(f, report)
	if err != nil {
		// left unmarked so the next cycle can retry the write
		e.log.Error().Err(err).Str("accession", f.AccessionNumber).
			Msg("Failed writing report")
		return
	}

	if e.notifier != nil {
		if err := e.notifier.SendReportAlert(ctx, report, path); err != nil {
			e.log.Warn().Err(err).Str("ticker", f.Ticker).Msg("Notification failed")
		}
	}

	e.markProcessed(ctx, handle, f)
	e.log.Info().Str("ticker", f.Ticker).Str("path", path).Msg("Filing processed")
}

func (e *Engine) markProcessed(ctx context.Context, handle *state.Handle, f Filing) {
	if err := handle.MarkProcessed(ctx, f.AccessionNumber, f.Ticker, f.FilingDate); err != nil {
		e.log.Error().Err(err).Str("accession", f.AccessionNumber).
			Msg("Failed marking filing processed")
	}
}

// writeReport persists the rendered report under reportsDir. NSE accession
// numbers are URLs, so the filename is sanitized.
func (e *Engine) writeReport(f Filing, report *extraction.Report) (string, error) {
	if err := os.MkdirAll(e.reportsDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.md", sanitizeFilename(f.Ticker), sanitizeFilename(f.AccessionNumber))
	path := filepath.Join(e.reportsDir, name)
	if err := os.WriteFile(path, []byte(report.Markdown(f.AccessionNumber)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeFilename(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

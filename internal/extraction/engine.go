package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// maxDocumentChars caps the filing text handed to the model.
const maxDocumentChars = 60000

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// Engine turns raw filing text into a structured Report via a generative
// model.
type Engine struct {
	client GenerativeClient
	log    zerolog.Logger
}

// NewEngine creates an extraction engine.
func NewEngine(client GenerativeClient, log zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		log:    log.With().Str("component", "extraction").Logger(),
	}
}

// Extract prompts the model for a structured earnings note and parses the
// returned JSON.
func (e *Engine) Extract(ctx context.Context, text, ticker string) (*Report, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty filing text for %s", ticker)
	}
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}

	raw, err := e.client.Generate(ctx, buildPrompt(text, ticker))
	if err != nil {
		return nil, fmt.Errorf("extraction generation for %s: %w", ticker, err)
	}

	report, err := parseReport(raw)
	if err != nil {
		return nil, fmt.Errorf("extraction parse for %s: %w", ticker, err)
	}
	if report.Ticker == "" {
		report.Ticker = ticker
	}
	e.log.Info().Str("ticker", report.Ticker).Int("kpis", len(report.KPIs)).
		Int("guidance", len(report.Guidance)).Msg("Extracted earnings report")
	return report, nil
}

func buildPrompt(text, ticker string) string {
	var sb strings.Builder
	sb.WriteString("You are a financial analyst. Extract structured data from the following SEC filing or corporate announcement for ")
	sb.WriteString(ticker)
	sb.WriteString(".\n\nReturn ONLY a JSON object with this exact shape, no prose and no markdown fences:\n")
	sb.WriteString(`{
  "company_name": "string",
  "ticker": "string",
  "fiscal_period": "string, e.g. Q3 2025",
  "kpis": [{"name": "string", "value_actual": "string", "context": "string"}],
  "guidance": [{"metric": "string", "midpoint": "string", "unit": "string", "commentary": "string"}],
  "summary": {"bull_case": ["string"], "bear_case": ["string"]}
}`)
	sb.WriteString("\n\nDocument:\n")
	sb.WriteString(text)
	return sb.String()
}

// parseReport tolerates markdown fences and surrounding prose around the
// JSON object.
func parseReport(raw string) (*Report, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var report Report
	if err := json.Unmarshal([]byte(cleaned), &report); err == nil {
		return &report, nil
	}

	block := jsonBlockRe.FindString(cleaned)
	if block == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(block), &report); err != nil {
		return nil, fmt.Errorf("malformed JSON in model output: %w", err)
	}
	return &report, nil
}

package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/extraction"
)

// TitleFilter asks a generative model which market questions are
// investment-grade, meaning they plausibly move equity prices. Pop culture
// and sports markets score high on text search but carry no signal.
type TitleFilter struct {
	client extraction.GenerativeClient
	log    zerolog.Logger
}

// NewTitleFilter creates a title filter.
func NewTitleFilter(client extraction.GenerativeClient, log zerolog.Logger) *TitleFilter {
	return &TitleFilter{
		client: client,
		log:    log.With().Str("component", "title_filter").Logger(),
	}
}

// Filter returns the subset of markets whose questions the model deems
// investment relevant. On model failure the unfiltered input is returned;
// a broken filter must not hide markets.
func (f *TitleFilter) Filter(ctx context.Context, markets []MarketMetadata) []MarketMetadata {
	if len(markets) == 0 {
		return markets
	}

	var sb strings.Builder
	sb.WriteString("You are screening prediction-market questions for an equity research desk.\n")
	sb.WriteString("Return ONLY a JSON array of the indices (0-based) of questions that are relevant to\n")
	sb.WriteString("macroeconomics, monetary policy, regulation, technology, or corporate events.\n")
	sb.WriteString("Exclude sports, entertainment, and celebrity questions.\n\nQuestions:\n")
	for i, m := range markets {
		fmt.Fprintf(&sb, "%d. %s\n", i, m.Title)
	}

	raw, err := f.client.Generate(ctx, sb.String())
	if err != nil {
		f.log.Warn().Err(err).Msg("Title filter failed, passing markets through")
		return markets
	}

	indices, err := parseIndexList(raw)
	if err != nil {
		f.log.Warn().Err(err).Msg("Unparseable filter response, passing markets through")
		return markets
	}

	var kept []MarketMetadata
	for _, i := range indices {
		if i >= 0 && i < len(markets) {
			kept = append(kept, markets[i])
		}
	}
	f.log.Debug().Int("in", len(markets)).Int("kept", len(kept)).Msg("Filtered market titles")
	return kept
}

func parseIndexList(raw string) ([]int, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in filter response")
	}

	var indices []int
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &indices); err != nil {
		return nil, fmt.Errorf("malformed index list: %w", err)
	}
	return indices, nil
}

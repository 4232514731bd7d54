package extraction

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient struct{ out string }

func (c *staticClient) Generate(_ context.Context, _ string) (string, error) {
	return c.out, nil
}

const sampleJSON = `{
  "company_name": "Acme Corp",
  "ticker": "ACME",
  "fiscal_period": "Q3 2025",
  "kpis": [{"name": "Revenue", "value_actual": "$1.2B", "context": "up 12% YoY"}],
  "guidance": [{"metric": "Revenue", "midpoint": "1.3", "unit": "$B", "commentary": "Q4 outlook"}],
  "summary": {"bull_case": ["Growth accelerating"], "bear_case": ["Margin pressure"]}
}`

func TestExtractParsesCleanJSON(t *testing.T) {
	e := NewEngine(&staticClient{out: sampleJSON}, zerolog.Nop())

	report, err := e.Extract(context.Background(), "some filing text", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", report.CompanyName)
	assert.Equal(t, "Q3 2025", report.FiscalPeriod)
	require.Len(t, report.KPIs, 1)
	assert.Equal(t, "Revenue", report.KPIs[0].Name)
}

func TestExtractStripsMarkdownFences(t *testing.T) {
	e := NewEngine(&staticClient{out: "```json\n" + sampleJSON + "\n```"}, zerolog.Nop())

	report, err := e.Extract(context.Background(), "text", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "ACME", report.Ticker)
}

func TestExtractRecoversJSONFromProse(t *testing.T) {
	e := NewEngine(&staticClient{out: "Here is the extraction:\n" + sampleJSON + "\nDone."}, zerolog.Nop())

	report, err := e.Extract(context.Background(), "text", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", report.CompanyName)
}

func TestExtractRejectsNonJSONOutput(t *testing.T) {
	e := NewEngine(&staticClient{out: "I could not process this document."}, zerolog.Nop())

	_, err := e.Extract(context.Background(), "text", "ACME")
	require.Error(t, err)
}

func TestExtractFillsTickerWhenOmitted(t *testing.T) {
	e := NewEngine(&staticClient{out: `{"company_name":"Acme Corp","fiscal_period":"Q3 2025"}`}, zerolog.Nop())

	report, err := e.Extract(context.Background(), "text", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "ACME", report.Ticker)
}

func TestExtractEmptyTextFails(t *testing.T) {
	e := NewEngine(&staticClient{out: sampleJSON}, zerolog.Nop())

	_, err := e.Extract(context.Background(), "   ", "ACME")
	require.Error(t, err)
}

func TestReportMarkdownLayout(t *testing.T) {
	report := &Report{
		CompanyName:  "Acme Corp",
		Ticker:       "ACME",
		FiscalPeriod: "Q3 2025",
		KPIs:         []KPI{{Name: "Revenue", ValueActual: "$1.2B", Context: "up 12% YoY"}},
		Guidance:     []Guidance{{Metric: "Revenue", Midpoint: "1.3", Unit: "$B", Commentary: "Q4 outlook"}},
		Summary:      &Summary{BullCase: []string{"Growth"}, BearCase: []string{"Margins"}},
	}

	out := report.Markdown("0001-23-000045")
	assert.Contains(t, out, "# Earnings Note: Acme Corp (ACME)")
	assert.Contains(t, out, "**ID**: 0001-23-000045")
	assert.Contains(t, out, "- **Revenue**: $1.2B (Context: up 12% YoY)")
	assert.Contains(t, out, "**Bull Case**:")
}

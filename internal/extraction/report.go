package extraction

import (
	"fmt"
	"strings"
)

// Report is the structured earnings note produced by the extractor for one
// filing.
type Report struct {
	CompanyName  string     `json:"company_name"`
	Ticker       string     `json:"ticker"`
	FiscalPeriod string     `json:"fiscal_period"`
	KPIs         []KPI      `json:"kpis"`
	Guidance     []Guidance `json:"guidance"`
	Summary      *Summary   `json:"summary,omitempty"`
}

// KPI is one extracted metric with its reported value.
type KPI struct {
	Name        string `json:"name"`
	ValueActual string `json:"value_actual"`
	Context     string `json:"context"`
}

// Guidance is one forward-looking statement.
type Guidance struct {
	Metric     string `json:"metric"`
	Midpoint   string `json:"midpoint"`
	Unit       string `json:"unit"`
	Commentary string `json:"commentary"`
}

// Summary carries the extractor's qualitative read.
type Summary struct {
	BullCase []string `json:"bull_case"`
	BearCase []string `json:"bear_case"`
}

// Markdown renders the report in the layout persisted to
// reports/<ticker>_<accession>.md.
func (r *Report) Markdown(accession string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Earnings Note: %s (%s)\n", r.CompanyName, r.Ticker)
	fmt.Fprintf(&sb, "**Fiscal Period**: %s\n", r.FiscalPeriod)
	fmt.Fprintf(&sb, "**ID**: %s\n\n", accession)

	sb.WriteString("## Key KPIs\n")
	for _, kpi := range r.KPIs {
		fmt.Fprintf(&sb, "- **%s**: %s (Context: %s)\n", kpi.Name, kpi.ValueActual, kpi.Context)
	}

	sb.WriteString("\n## Guidance\n")
	for _, g := range r.Guidance {
		fmt.Fprintf(&sb, "- **%s**: %s %s (%s)\n", g.Metric, g.Midpoint, g.Unit, g.Commentary)
	}

	if r.Summary != nil {
		sb.WriteString("\n## Summary\n")
		if len(r.Summary.BullCase) > 0 {
			sb.WriteString("**Bull Case**:\n")
			for _, item := range r.Summary.BullCase {
				fmt.Fprintf(&sb, "- %s\n", item)
			}
		}
		if len(r.Summary.BearCase) > 0 {
			sb.WriteString("**Bear Case**:\n")
			for _, item := range r.Summary.BearCase {
				fmt.Fprintf(&sb, "- %s\n", item)
			}
		}
	}

	return sb.String()
}

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/extraction"
)

// Client posts report alerts to a webhook. A client with no URL configured
// is a no-op.
type Client struct {
	webhookURL string
	client     *http.Client
	log        zerolog.Logger
}

// NewClient creates a webhook notification client. webhookURL may be empty
// to disable notifications.
func NewClient(webhookURL string, log zerolog.Logger) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "notifications").Logger(),
	}
}

// Enabled reports whether a webhook is configured.
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

type alertPayload struct {
	Text   string `json:"text"`
	Ticker string `json:"ticker"`
	Report string `json:"report_path"`
}

// SendReportAlert announces a freshly written report. Failures are returned
// for the caller to log; delivery is best-effort and never blocks filing
// processing.
func (c *Client) SendReportAlert(ctx context.Context, report *extraction.Report, reportPath string) error {
	if !c.Enabled() {
		return nil
	}

	payload := alertPayload{
		Text: fmt.Sprintf("New earnings report: %s (%s) %s",
			report.CompanyName, report.Ticker, report.FiscalPeriod),
		Ticker: report.Ticker,
		Report: reportPath,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	c.log.Info().Str("ticker", report.Ticker).Msg("Report alert sent")
	return nil
}

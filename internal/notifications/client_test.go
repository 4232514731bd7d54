package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/extraction"
)

func testReport() *extraction.Report {
	return &extraction.Report{CompanyName: "Acme Corp", Ticker: "ACME", FiscalPeriod: "Q3 2025"}
}

func TestSendReportAlertPostsPayload(t *testing.T) {
	var got alertPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	t.Cleanup(server.Close)

	c := NewClient(server.URL, zerolog.Nop())
	err := c.SendReportAlert(context.Background(), testReport(), "/data/reports/ACME_1.md")
	require.NoError(t, err)
	assert.Equal(t, "ACME", got.Ticker)
	assert.Contains(t, got.Text, "Acme Corp")
	assert.Equal(t, "/data/reports/ACME_1.md", got.Report)
}

func TestSendReportAlertDisabledWithoutURL(t *testing.T) {
	c := NewClient("", zerolog.Nop())
	assert.False(t, c.Enabled())
	require.NoError(t, c.SendReportAlert(context.Background(), testReport(), "x"))
}

func TestSendReportAlertSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	c := NewClient(server.URL, zerolog.Nop())
	err := c.SendReportAlert(context.Background(), testReport(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

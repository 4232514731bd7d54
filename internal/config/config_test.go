package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.SignalTTLHours)
	assert.Equal(t, 0.35, cfg.ResolverThreshold)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.UseLiveProviders)
	assert.Contains(t, cfg.StateDBPath, "ingestion_state.db")
	assert.NotEmpty(t, cfg.SECIdentity)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SIGNAL_TTL_HOURS", "6")
	t.Setenv("RESOLVER_THRESHOLD", "0.5")
	t.Setenv("USE_LIVE_PROVIDERS", "true")
	t.Setenv("SNAPSHOT_TICKERS", "NVDA, MSFT ,AAPL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.SignalTTLHours)
	assert.Equal(t, 0.5, cfg.ResolverThreshold)
	assert.True(t, cfg.UseLiveProviders)
	assert.Equal(t, []string{"NVDA", "MSFT", "AAPL"}, cfg.SnapshotTickers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			DataDir:            "/tmp/data",
			SECIdentity:        "Meridian test@example.com",
			SignalTTLHours:     24,
			ResolverThreshold:  0.35,
			HTTPTimeoutSeconds: 30,
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.SignalTTLHours = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ResolverThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.SECIdentity = ""
	assert.Error(t, cfg.Validate())
}

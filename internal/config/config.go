package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string
	StateDBPath        string
	MarketIndexDBPath  string
	MacroDBPath        string
	SignalsDBPath      string
	ReportsDir         string
	SECIdentity        string // identity header sent to the SEC filings API
	NSERSSFeedURL      string
	GammaAPIBase       string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiFallback     string
	GeminiEmbedModel   string
	SignalsAPIBase     string // vendor endpoint for live alternative-data providers
	NotifyWebhookURL   string
	SignalTTLHours     int
	ResolverThreshold  float64
	UseLiveProviders   bool
	UseLLMFilter       bool
	LogLevel           string
	Port               int
	SnapshotTickers    []string
	MaxStaleHours      int
	HTTPTimeoutSeconds int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		DataDir:            dataDir,
		StateDBPath:        getEnv("STATE_DB_PATH", filepath.Join(dataDir, "ingestion_state.db")),
		MarketIndexDBPath:  getEnv("MARKET_INDEX_DB_PATH", filepath.Join(dataDir, "market_index.db")),
		MacroDBPath:        getEnv("MACRO_DB_PATH", filepath.Join(dataDir, "macro_signals.db")),
		SignalsDBPath:      getEnv("SIGNALS_DB_PATH", filepath.Join(dataDir, "alt_signals.db")),
		ReportsDir:         getEnv("REPORTS_DIR", filepath.Join(dataDir, "reports")),
		SECIdentity:        getEnv("SEC_IDENTITY", "Meridian Research contact@meridianhq.dev"),
		NSERSSFeedURL:      getEnv("NSE_RSS_URL", "https://nsearchives.nseindia.com/content/RSS/Corporate_Announcements.xml"),
		GammaAPIBase:       getEnv("GAMMA_API_BASE", "https://gamma-api.polymarket.com"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiFallback:     getEnv("GEMINI_FALLBACK_MODEL", "gemini-2.0-flash"),
		GeminiEmbedModel:   getEnv("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
		SignalsAPIBase:     getEnv("SIGNALS_API_BASE", ""),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		SignalTTLHours:     getEnvAsInt("SIGNAL_TTL_HOURS", 24),
		ResolverThreshold:  getEnvAsFloat("RESOLVER_THRESHOLD", 0.35),
		UseLiveProviders:   getEnvAsBool("USE_LIVE_PROVIDERS", false),
		UseLLMFilter:       getEnvAsBool("USE_LLM_FILTER", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnvAsInt("PORT", 8080),
		SnapshotTickers:    splitList(getEnv("SNAPSHOT_TICKERS", "")),
		MaxStaleHours:      getEnvAsInt("INDEX_MAX_STALE_HOURS", 6),
		HTTPTimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.SECIdentity == "" {
		return fmt.Errorf("SEC_IDENTITY is required (the filings API enforces identity headers)")
	}
	if c.SignalTTLHours <= 0 {
		return fmt.Errorf("SIGNAL_TTL_HOURS must be positive, got %d", c.SignalTTLHours)
	}
	if c.ResolverThreshold < 0 || c.ResolverThreshold > 1 {
		return fmt.Errorf("RESOLVER_THRESHOLD must be in [0,1], got %v", c.ResolverThreshold)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

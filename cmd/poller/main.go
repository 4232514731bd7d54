// Package main is the filings poller: it watches SEC EDGAR and NSE corporate
// announcements for the given tickers, extracts structured earnings notes
// with an LLM, and writes them to the reports directory.
//
// Usage:
//
//	poller [flags] TICKER [TICKER...]
//
// Exit codes: 0 clean shutdown, 1 fatal runtime error, 2 configuration error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/database"
	"github.com/meridianhq/meridian/internal/extraction"
	"github.com/meridianhq/meridian/internal/ingestion"
	"github.com/meridianhq/meridian/internal/notifications"
	"github.com/meridianhq/meridian/internal/scheduler"
	"github.com/meridianhq/meridian/internal/state"
	"github.com/meridianhq/meridian/pkg/logger"
)

const pollingJobID = "polling_job"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		intervalMin  = flag.Int("interval", 5, "polling interval in minutes")
		cronExpr     = flag.String("cron", "", "5-field cron expression; overrides --interval")
		simple       = flag.Bool("simple", false, "plain ticker loop without the scheduler")
		logLevel     = flag.String("log-level", "", "debug, info, warn, or error; overrides LOG_LEVEL")
		maxWorkers   = flag.Int("max-workers", 0, "max concurrent filing workers (0 = auto)")
		misfireGrace = flag.Int("misfire-grace-seconds", 60, "seconds a delayed run may wait before it is skipped")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] TICKER [TICKER...]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	tickers := flag.Args()
	if err := validateFlags(tickers, *intervalMin, *misfireGrace); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if len(tickers) == 0 {
			flag.Usage()
		}
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		if !logger.IsValidLevel(*logLevel) {
			fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
			return 2
		}
		level = *logLevel
	}
	if cfg.GeminiAPIKey == "" {
		fmt.Fprintln(os.Stderr, "error: GEMINI_API_KEY is required for extraction")
		return 2
	}

	log := logger.New(logger.Config{Level: level, Pretty: true})
	log.Info().Strs("tickers", tickers).Msg("Starting filings poller")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error().Err(err).Msg("Failed to create data directory")
		return 1
	}

	stateDB, err := database.New(database.Config{Path: cfg.StateDBPath, Name: "state"})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open state database")
		return 1
	}
	defer stateDB.Close()

	store, err := state.New(stateDB, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize state store")
		return 1
	}

	ctx := context.Background()
	primary, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create generative client")
		return 1
	}
	fallback, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiFallback)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create fallback generative client")
		return 1
	}
	robust := extraction.NewRobust(
		[]extraction.GenerativeClient{primary, fallback},
		[]string{cfg.GeminiModel, cfg.GeminiFallback},
		log,
	)

	registry := ingestion.NewRegistry(
		ingestion.NewEdgarAdapter(cfg.SECIdentity, log),
		ingestion.NewNSEAdapter(cfg.NSERSSFeedURL, cfg.SECIdentity, log),
	)
	engine := ingestion.NewEngine(ingestion.EngineConfig{
		Registry:   registry,
		State:      store,
		Extractor:  extraction.NewEngine(robust, log),
		Notifier:   notifications.NewClient(cfg.NotifyWebhookURL, log),
		ReportsDir: cfg.ReportsDir,
		MaxWorkers: *maxWorkers,
	}, log)

	poll := func(ctx context.Context) error {
		return engine.RunOnce(ctx, tickers)
	}
	interval := time.Duration(*intervalMin) * time.Minute

	if *simple {
		return runSimpleLoop(log, poll, interval)
	}

	sched := scheduler.New(store, time.Duration(*misfireGrace)*time.Second, log)
	sched.RunNow(pollingJobID, poll)

	scheduled := false
	if *cronExpr != "" {
		if err := sched.AddCronJob(pollingJobID, *cronExpr, poll); err != nil {
			log.Warn().Err(err).Msg("Bad cron expression, falling back to interval schedule")
		} else {
			scheduled = true
		}
	}
	if !scheduled {
		sched.AddIntervalJob(pollingJobID, interval, poll)
	}
	sched.Start()

	waitForSignal(log)
	sched.Stop()
	log.Info().Msg("Poller stopped")
	return 0
}

// validateFlags rejects flag combinations the scheduler cannot honor.
func validateFlags(tickers []string, intervalMin, misfireGrace int) error {
	if len(tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	if intervalMin <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if misfireGrace <= 0 {
		return fmt.Errorf("--misfire-grace-seconds must be positive")
	}
	return nil
}

// runSimpleLoop polls on a plain ticker without scheduling, misfire
// tracking, or audit rows.
func runSimpleLoop(log zerolog.Logger, poll func(context.Context) error, interval time.Duration) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		waitForSignal(log)
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := poll(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Polling cycle failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Poller stopped")
			return 0
		case <-ticker.C:
		}
	}
}

func waitForSignal(log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
}

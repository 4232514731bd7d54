// Package main is the research API server: it serves market search, macro
// probabilities, and alternative-data signals over HTTP, and snapshots
// tracked macro markets once a day.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/database"
	"github.com/meridianhq/meridian/internal/extraction"
	"github.com/meridianhq/meridian/internal/macro"
	"github.com/meridianhq/meridian/internal/scheduler"
	"github.com/meridianhq/meridian/internal/server"
	"github.com/meridianhq/meridian/internal/signals"
	"github.com/meridianhq/meridian/internal/state"
	"github.com/meridianhq/meridian/pkg/logger"
)

const snapshotJobID = "macro_snapshot"

// seedEntities is the default resolver catalog, used when the entity table
// is empty on first boot.
var seedEntities = []signals.Entity{
	{Ticker: "NVDA", CanonicalName: "NVIDIA Corporation", Aliases: []string{"nvidia"}},
	{Ticker: "MSFT", CanonicalName: "Microsoft Corporation", Aliases: []string{"microsoft"}},
	{Ticker: "AAPL", CanonicalName: "Apple Inc.", Aliases: []string{"apple"}},
	{Ticker: "TSLA", CanonicalName: "Tesla, Inc.", Aliases: []string{"tesla"}},
	{Ticker: "META", CanonicalName: "Meta Platforms", Aliases: []string{"meta", "facebook"}},
	{Ticker: "GOOGL", CanonicalName: "Alphabet Inc.", Aliases: []string{"google", "alphabet"}},
	{Ticker: "AMZN", CanonicalName: "Amazon.com", Aliases: []string{"amazon"}},
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	log.Info().Msg("Starting research API server")

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
	indexDB, err := database.New(database.Config{Path: cfg.MarketIndexDBPath, Profile: database.ProfileCache, Name: "market_index"})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open market index database")
		return 1
	}
	defer indexDB.Close()
	macroDB, err := database.New(database.Config{Path: cfg.MacroDBPath, Name: "macro"})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open macro database")
		return 1
	}
	defer macroDB.Close()
	signalsDB, err := database.New(database.Config{Path: cfg.SignalsDBPath, Profile: database.ProfileCache, Name: "signals"})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open signals database")
		return 1
	}
	defer signalsDB.Close()

	stateStore, err := state.New(stateDB, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize state store")
		return 1
	}
	index, err := macro.NewIndex(indexDB, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize market index")
		return 1
	}
	timeseries, err := macro.NewTimeseries(macroDB, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize timeseries store")
		return 1
	}
	signalStore, err := signals.NewStore(signalsDB, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize signal store")
		return 1
	}

	ctx := context.Background()
	catalog := macro.NewCatalogClient(cfg.GammaAPIBase, log)
	discovery := macro.NewDiscovery(ctx, index, catalog, true, time.Duration(cfg.MaxStaleHours)*time.Hour, log)

	var filter *macro.TitleFilter
	if cfg.UseLLMFilter && cfg.GeminiAPIKey != "" {
		gen, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create generative client")
			return 1
		}
		filter = macro.NewTitleFilter(gen, log)
	}
	hydrator := macro.NewHydrator(catalog, index, filter, log)

	ttl := time.Duration(cfg.SignalTTLHours) * time.Hour
	sigService := signals.NewService(signalStore,
		signals.NewProviders(cfg.UseLiveProviders, cfg.SignalsAPIBase, log), ttl, log)

	resolver, err := buildResolver(ctx, cfg, signalStore, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize resolver")
		return 1
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		State:      stateStore,
		Index:      index,
		Hydrator:   hydrator,
		Timeseries: timeseries,
		Signals:    sigService,
		Resolver:   resolver,
	})

	sched := scheduler.New(stateStore, scheduler.DefaultMisfireGrace, log)
	if len(cfg.SnapshotTickers) > 0 {
		snapshot := snapshotJob(cfg.SnapshotTickers, discovery, hydrator, timeseries, log)
		if err := sched.AddCronJob(snapshotJobID, "0 6 * * *", snapshot); err != nil {
			log.Error().Err(err).Msg("Failed to schedule snapshot job")
			return 1
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
		return 1
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		return 1
	}
	log.Info().Msg("Server stopped")
	return 0
}

// buildResolver loads the entity catalog, seeding defaults on first boot.
// Without an API key the resolver stays empty and the resolve endpoint
// reports it.
func buildResolver(ctx context.Context, cfg *config.Config, store *signals.Store, log zerolog.Logger) (*signals.HybridResolver, error) {
	resolver := signals.NewHybridResolver(nil, cfg.ResolverThreshold, log)
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, entity resolution disabled")
		return resolver, nil
	}

	embedder, err := extraction.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
	if err != nil {
		return nil, err
	}
	resolver = signals.NewHybridResolver(embedder, cfg.ResolverThreshold, log)

	entities, err := store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		for _, e := range seedEntities {
			if err := store.UpsertEntity(ctx, e); err != nil {
				return nil, err
			}
		}
		entities = seedEntities
	}
	if err := resolver.LoadEntities(ctx, entities); err != nil {
		return nil, err
	}
	return resolver, nil
}

// snapshotJob persists one probability observation per tracked market,
// tagged with the ticker's sector so the series can be sliced later.
func snapshotJob(tickers []string, discovery *macro.Discovery, hydrator *macro.Hydrator, timeseries *macro.Timeseries, log zerolog.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		for _, ticker := range tickers {
			markets, err := discovery.SearchTicker(ctx, ticker, 5)
			if err != nil {
				return err
			}
			events := hydrator.HydrateAll(ctx, markets, macro.SectorFor(ticker), ticker)
			if _, err := timeseries.SaveBatch(ctx, events, now); err != nil {
				return err
			}
		}
		return nil
	}
}

// Package server exposes the research daemon's read API: system status,
// market search, macro probabilities, and alternative-data signals.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/meridianhq/meridian/internal/macro"
	"github.com/meridianhq/meridian/internal/signals"
	"github.com/meridianhq/meridian/internal/state"
)

// Config holds the server's dependencies.
type Config struct {
	Log        zerolog.Logger
	Port       int
	State      *state.Store
	Index      *macro.Index
	Hydrator   *macro.Hydrator
	Timeseries *macro.Timeseries
	Signals    *signals.Service
	Resolver   *signals.HybridResolver
}

// Server is the HTTP API server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	handlers *Handlers
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		handlers: NewHandlers(
			cfg.Log, cfg.State, cfg.Index, cfg.Hydrator, cfg.Timeseries, cfg.Signals, cfg.Resolver,
		),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handlers.HandleStatus)
		r.Get("/markets/search", s.handlers.HandleMarketSearch)
		r.Get("/macro/latest", s.handlers.HandleMacroLatest)
		r.Get("/macro/history/{eventID}", s.handlers.HandleMacroHistory)
		r.Get("/signals/{ticker}/{provider}", s.handlers.HandleSignal)
		r.Post("/resolve", s.handlers.HandleResolve)
	})
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

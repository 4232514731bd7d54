package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/meridianhq/meridian/internal/macro"
	"github.com/meridianhq/meridian/internal/signals"
	"github.com/meridianhq/meridian/internal/state"
)

// Handlers carries the API's backing services.
type Handlers struct {
	log        zerolog.Logger
	state      *state.Store
	index      *macro.Index
	hydrator   *macro.Hydrator
	timeseries *macro.Timeseries
	signals    *signals.Service
	resolver   *signals.HybridResolver
	startedAt  time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(
	log zerolog.Logger,
	st *state.Store,
	index *macro.Index,
	hydrator *macro.Hydrator,
	timeseries *macro.Timeseries,
	sigs *signals.Service,
	resolver *signals.HybridResolver,
) *Handlers {
	return &Handlers{
		log:        log.With().Str("component", "handlers").Logger(),
		state:      st,
		index:      index,
		hydrator:   hydrator,
		timeseries: timeseries,
		signals:    sigs,
		resolver:   resolver,
		startedAt:  time.Now(),
	}
}

// HandleHealth is the liveness probe.
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus reports processing counters and host utilization.
// GET /api/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	processed := 0
	if h.state != nil {
		if count, err := h.state.ProcessedCount(); err == nil {
			processed = count
		}
	}
	indexed := 0
	if h.index != nil {
		if count, err := h.index.Count(r.Context()); err == nil {
			indexed = count
		}
	}

	cpuPct, memPct := hostStats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"uptime_seconds":    int(time.Since(h.startedAt).Seconds()),
		"processed_filings": processed,
		"indexed_markets":   indexed,
		"cpu_percent":       cpuPct,
		"memory_percent":    memPct,
	})
}

func hostStats() (float64, float64) {
	cpuPct := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}
	memPct := 0.0
	if stat, err := mem.VirtualMemory(); err == nil {
		memPct = stat.UsedPercent
	}
	return cpuPct, memPct
}

// HandleMarketSearch searches the local market index.
// GET /api/markets/search?q=...&limit=10
func (h *Handlers) HandleMarketSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := queryInt(r, "limit", 10)

	results, err := h.index.Search(r.Context(), query, limit)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("Market search failed")
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

// HandleMacroLatest returns the newest snapshot per tracked event.
// GET /api/macro/latest?limit=20
func (h *Handlers) HandleMacroLatest(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	latest, err := h.timeseries.LatestProbabilities(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read latest probabilities")
		h.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": latest})
}

// HandleMacroHistory returns one event's snapshot series over a trailing
// window.
// GET /api/macro/history/{eventID}?days=7
func (h *Handlers) HandleMacroHistory(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	days := queryInt(r, "days", macro.DefaultHistoryDays)

	history, err := h.timeseries.EventHistory(r.Context(), eventID, days)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to read event history")
		h.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	if len(history) == 0 {
		h.writeError(w, http.StatusNotFound, "no snapshots for event")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID, "history": history})
}

// HandleSignal returns the cached (or freshly fetched) observation.
// GET /api/signals/{ticker}/{provider}
func (h *Handlers) HandleSignal(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	provider := chi.URLParam(r, "provider")

	sig, err := h.signals.GetSignal(r.Context(), ticker, provider)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", ticker).Str("provider", provider).Msg("Signal lookup failed")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

type resolveRequest struct {
	Mention string `json:"mention"`
}

// HandleResolve maps a free-text company mention to a ticker.
// POST /api/resolve {"mention": "..."}
func (h *Handlers) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mention == "" {
		h.writeError(w, http.StatusBadRequest, "body must be {\"mention\": \"...\"}")
		return
	}

	match, err := h.resolver.Resolve(r.Context(), req.Mention)
	if err != nil {
		h.log.Error().Err(err).Str("mention", req.Mention).Msg("Resolution failed")
		h.writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	if match == nil {
		h.writeError(w, http.StatusNotFound, "no entity cleared the similarity threshold")
		return
	}
	h.writeJSON(w, http.StatusOK, match)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

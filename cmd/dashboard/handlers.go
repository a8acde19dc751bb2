package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"arbitrage-bot-go/internal/config"
	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/optimizer"
	"arbitrage-bot-go/internal/params"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	cfg   *config.Config
	store *database.Store
	cache *params.Cache
	opt   *optimizer.Optimizer
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, cfg *config.Config, store *database.Store, cache *params.Cache, opt *optimizer.Optimizer) *APIHandler {
	return &APIHandler{log: log, cfg: cfg, store: store, cache: cache, opt: opt}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// RecentTradesHandler returns the most recent executed trades.
func (h *APIHandler) RecentTradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.store.RecentTrades(queryInt(r, "limit", 50))
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, trades)
}

// StatsSummaryResponse is the structure for the /api/stats/summary endpoint.
type StatsSummaryResponse struct {
	Since24h database.Stats `json:"since_24h"`
	AllTime  database.Stats `json:"all_time"`
}

// StatsSummaryHandler returns trading statistics for the last day and overall.
func (h *APIHandler) StatsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	allTime, err := h.store.OverallStats()
	if err != nil {
		h.log.Error("Failed to calculate statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	since24h, err := h.store.StatsSince(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		h.log.Error("Failed to calculate statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, StatsSummaryResponse{Since24h: since24h, AllTime: allTime})
}

// DailyPnlHandler returns the per-day PnL summary.
func (h *APIHandler) DailyPnlHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.DailyPnlSummary(queryInt(r, "days", 30))
	if err != nil {
		h.log.Error("Failed to get daily PnL", zap.Error(err))
		http.Error(w, "Failed to get daily PnL", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, summary)
}

// ShadowTradesHandler returns the most recent shadow trades.
func (h *APIHandler) ShadowTradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.store.RecentShadowTrades(queryInt(r, "limit", 50))
	if err != nil {
		h.log.Error("Failed to get shadow trades", zap.Error(err))
		http.Error(w, "Failed to get shadow trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, trades)
}

// ShadowStatsHandler returns aggregate shadow statistics over a trailing
// number of days.
func (h *APIHandler) ShadowStatsHandler(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	stats, err := h.store.ShadowStatsSince(time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		h.log.Error("Failed to get shadow statistics", zap.Error(err))
		http.Error(w, "Failed to get shadow statistics", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, stats)
}

// CompareHandler returns the shadow-vs-real comparison.
func (h *APIHandler) CompareHandler(w http.ResponseWriter, r *http.Request) {
	comparison, err := h.opt.CompareShadowVsReal(queryInt(r, "days", 7))
	if err != nil {
		h.log.Error("Failed to compare shadow vs real", zap.Error(err))
		http.Error(w, "Failed to compare", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, comparison)
}

// ParamsHandler lists all tunable parameters with their bounds.
func (h *APIHandler) ParamsHandler(w http.ResponseWriter, r *http.Request) {
	parameters, err := h.store.AllParameters()
	if err != nil {
		h.log.Error("Failed to get parameters", zap.Error(err))
		http.Error(w, "Failed to get parameters", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, parameters)
}

// UpdateParamRequest is the body for /api/params/update.
type UpdateParamRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// UpdateParamHandler validates and applies a parameter change. The bot picks
// the new value up on its next cache reload.
func (h *APIHandler) UpdateParamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateParameter(req.Name, req.Value); err != nil {
		h.log.Warn("Parameter update rejected",
			zap.String("name", req.Name),
			zap.Float64("value", req.Value),
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.cache.Reload()

	h.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"name":   req.Name,
		"value":  req.Value,
	})
}

// DiagnosticsResponse is the structure for the /api/diagnostics endpoint.
// Everything here is derived from the shared database, since the bot runs as
// a separate process.
type DiagnosticsResponse struct {
	Heartbeat           time.Time          `json:"heartbeat"`
	HeartbeatAgeSeconds float64            `json:"heartbeat_age_seconds"`
	BotAlive            bool               `json:"bot_alive"`
	TradesLastHour      int64              `json:"trades_last_hour"`
	Parameters          map[string]float64 `json:"parameters"`
	ParamsReloadedAt    time.Time          `json:"params_reloaded_at"`
}

// DiagnosticsHandler reports bot liveness and the live parameter snapshot.
func (h *APIHandler) DiagnosticsHandler(w http.ResponseWriter, r *http.Request) {
	heartbeat, err := h.store.GetHeartbeat()
	if err != nil {
		h.log.Error("Failed to read heartbeat", zap.Error(err))
		http.Error(w, "Failed to read heartbeat", http.StatusInternalServerError)
		return
	}

	lastHour, err := h.store.StatsSince(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		h.log.Error("Failed to read trade stats", zap.Error(err))
		http.Error(w, "Failed to read trade stats", http.StatusInternalServerError)
		return
	}

	age := time.Duration(0)
	if !heartbeat.IsZero() {
		age = time.Since(heartbeat)
	}
	// Consider the bot dead after three missed heartbeats.
	aliveWindow := 3 * time.Duration(h.cfg.Trading.HeartbeatSeconds) * time.Second

	h.cache.MaybeReload()
	h.writeJSON(w, DiagnosticsResponse{
		Heartbeat:           heartbeat,
		HeartbeatAgeSeconds: age.Seconds(),
		BotAlive:            !heartbeat.IsZero() && age < aliveWindow,
		TradesLastHour:      lastHour.TotalTrades,
		Parameters:          h.cache.All(),
		ParamsReloadedAt:    h.cache.LastReload(),
	})
}

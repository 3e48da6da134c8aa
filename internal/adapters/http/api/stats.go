// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"
)

// StatsHandler serves a point-in-time snapshot of pipeline state.
type StatsHandler struct {
	deps    Dependencies
	started time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps, started: time.Now()}
}

// statsResponse mirrors the read shape of GET /v1/stats.
type statsResponse struct {
	PipelineStats
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HandleStats handles GET /v1/stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		PipelineStats: h.deps.Stats(r.Context()),
		UptimeSeconds: time.Since(h.started).Seconds(),
	})
}

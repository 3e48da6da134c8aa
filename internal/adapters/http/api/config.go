// Package api declares HTTP contracts and route registration helpers.
package api

import "net/http"

// ConfigHandler serves the read-only service tunables.
type ConfigHandler struct {
	deps Dependencies
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(deps Dependencies) *ConfigHandler {
	return &ConfigHandler{deps: deps}
}

// HandleConfig handles GET /v1/config requests.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ConfigInfo(r.Context()))
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/keel/internal/adapters/places"
)

// ResolveHandler handles merchant resolution requests.
type ResolveHandler struct {
	deps Dependencies
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(deps Dependencies) *ResolveHandler {
	return &ResolveHandler{deps: deps}
}

// resolveResponse mirrors the read shape of GET /v1/merchant/resolve.
type resolveResponse struct {
	Merchant   string  `json:"merchant"`
	MCC        string  `json:"mcc,omitempty"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

// HandleResolve handles GET /v1/merchant/resolve requests.
func (h *ResolveHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidCoordinates, "lat must be a float", false)
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidCoordinates, "lon must be a float", false)
		return
	}

	resolution, err := h.deps.ResolveMerchant(r.Context(), lat, lon)
	switch {
	case err == nil:
	case errors.Is(err, places.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, CodeInvalidCoordinates, err.Error(), false)
		return
	case errors.Is(err, places.ErrNoMerchants):
		writeError(w, http.StatusNotFound, CodeNoMerchantsFound, "no merchants found at location", false)
		return
	default:
		writeError(w, http.StatusBadGateway, CodeUpstreamError, "merchant lookup unavailable", true)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Merchant:   resolution.Merchant,
		MCC:        resolution.MCC,
		Category:   resolution.Category,
		Confidence: resolution.Confidence,
	})
}

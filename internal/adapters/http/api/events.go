// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/keel/internal/adapters/places"
	service "github.com/okian/keel/internal/app"
	"github.com/okian/keel/internal/domain/model"
)

// IdempotencyKeyHeader guards POST /v1/events/visit against duplicate delivery.
const IdempotencyKeyHeader = "Idempotency-Key"

// EventsHandler handles visit event submissions.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// visitRequest mirrors the schema for POST /v1/events/visit.
type visitRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
	UserID    string  `json:"user_id,omitempty"`
}

// ackResponse reports how a visit submission was handled.
type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostVisit handles POST /v1/events/visit requests.
func (h *EventsHandler) HandlePostVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		writeError(w, http.StatusBadRequest, CodeMissingIdempotencyKey, "Idempotency-Key header is required", false)
		return
	}

	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "malformed request body", false)
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "invalid timestamp; must be RFC3339", false)
			return
		}
		ts = parsed
	}

	status, err := h.deps.IngestVisit(r.Context(), model.VisitEvent{
		IdempotencyKey: key,
		Latitude:       req.Lat,
		Longitude:      req.Lon,
		Timestamp:      ts,
		UserID:         req.UserID,
	})
	switch {
	case err == nil:
	case errors.Is(err, places.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, CodeInvalidCoordinates, err.Error(), false)
		return
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, CodeBackpressure, "event queue full, retry later", true)
		return
	default:
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to record visit", true)
		return
	}

	if status == service.IngestDuplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: string(status), Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: string(status), Duplicate: false})
}

// recommendationResponse mirrors the read shape of GET /v1/events/visit/{key}.
type recommendationResponse struct {
	IdempotencyKey string                     `json:"idempotency_key"`
	Merchant       string                     `json:"merchant,omitempty"`
	MCC            string                     `json:"mcc,omitempty"`
	Category       string                     `json:"category,omitempty"`
	Confidence     float64                    `json:"confidence"`
	Top            []model.CardRecommendation `json:"top"`
	RulesVersion   string                     `json:"rules_version"`
	Fallback       bool                       `json:"fallback"`
	ProcessedAt    time.Time                  `json:"processed_at"`
}

// HandleGetVisit handles GET /v1/events/visit/{key} requests, returning the
// recommendation the pipeline stored for an accepted visit. A key that is
// unknown, still in flight or past retention answers 404.
func (h *EventsHandler) HandleGetVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/v1/events/visit/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	result, ok := h.deps.Recommendation(r.Context(), key)
	if !ok {
		writeError(w, http.StatusNotFound, CodeResultNotFound, "no recommendation for key", true)
		return
	}

	top := result.Top
	if top == nil {
		top = []model.CardRecommendation{}
	}
	writeJSON(w, http.StatusOK, recommendationResponse{
		IdempotencyKey: result.IdempotencyKey,
		Merchant:       result.Resolution.Merchant,
		MCC:            result.Resolution.MCC,
		Category:       result.Resolution.Category,
		Confidence:     result.Resolution.Confidence,
		Top:            top,
		RulesVersion:   result.RulesVersion,
		Fallback:       result.Fallback,
		ProcessedAt:    result.ProcessedAt,
	})
}

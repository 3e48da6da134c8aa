// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/keel/internal/app"
	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/internal/domain/ranking"
)

// Aliases for shapes shared with the service layer.
type (
	// IngestStatus reports how a submitted visit event was handled.
	IngestStatus = service.IngestStatus
	// ConfigInfo mirrors the read shape of GET /v1/config.
	ConfigInfo = service.Info
	// PipelineStats mirrors the read shape of GET /v1/stats.
	PipelineStats = service.Stats
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// IngestVisit records a visit event idempotently and enqueues it for
	// asynchronous processing.
	IngestVisit(ctx context.Context, e model.VisitEvent) (IngestStatus, error)

	// Recommendation returns the stored pipeline result for an idempotency
	// key, if the visit has been processed and the result has not expired.
	Recommendation(ctx context.Context, key string) (model.RecommendationResult, bool)

	// ResolveMerchant resolves coordinates to the most likely merchant.
	ResolveMerchant(ctx context.Context, lat, lon float64) (model.MerchantResolution, error)

	// RankCards ranks candidate cards for a category or MCC.
	RankCards(ctx context.Context, category, mcc string, cards []model.CardCandidate) ranking.Result

	// Read operations expose live configuration and pipeline state.
	ConfigInfo(ctx context.Context) ConfigInfo
	Stats(ctx context.Context) PipelineStats
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	resolveHandler *ResolveHandler
	scoreHandler   *ScoreHandler
	eventsHandler  *EventsHandler
	configHandler  *ConfigHandler
	statsHandler   *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		resolveHandler: NewResolveHandler(deps),
		scoreHandler:   NewScoreHandler(deps),
		eventsHandler:  NewEventsHandler(deps),
		configHandler:  NewConfigHandler(deps),
		statsHandler:   NewStatsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/v1/merchant/resolve", RequestIDMiddleware(MetricsMiddleware(s.resolveHandler.HandleResolve, "resolve")))
	mux.HandleFunc("/v1/score", RequestIDMiddleware(MetricsMiddleware(s.scoreHandler.HandleScore, "score")))
	mux.HandleFunc("/v1/events/visit", RequestIDMiddleware(MetricsMiddleware(s.eventsHandler.HandlePostVisit, "events_visit")))
	mux.HandleFunc("/v1/events/visit/", RequestIDMiddleware(MetricsMiddleware(s.eventsHandler.HandleGetVisit, "events_visit_result")))
	mux.HandleFunc("/v1/config", RequestIDMiddleware(MetricsMiddleware(s.configHandler.HandleConfig, "config")))
	mux.HandleFunc("/v1/stats", RequestIDMiddleware(MetricsMiddleware(s.statsHandler.HandleStats, "stats")))
}

// errorBody is the inner payload of the error envelope.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// errorResponse is the envelope returned on every non-2xx response.
type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}})
}

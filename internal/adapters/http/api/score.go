// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/keel/internal/domain/model"
)

// maxRecommendations caps how many ranked cards a response carries.
const maxRecommendations = 3

// ScoreHandler handles card ranking requests.
type ScoreHandler struct {
	deps Dependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// scoreRequest mirrors the schema for POST /v1/score. All fields are
// optional; without mcc or category every card ranks at its base multiplier.
type scoreRequest struct {
	Merchant string   `json:"merchant,omitempty"`
	MCC      string   `json:"mcc,omitempty"`
	Category string   `json:"category,omitempty"`
	Cards    []string `json:"cards,omitempty"`
}

// scoreResponse mirrors the read shape of POST /v1/score.
type scoreResponse struct {
	Top              []model.CardRecommendation `json:"top"`
	UsedRulesVersion string                     `json:"used_rules_version"`
}

// HandleScore handles POST /v1/score requests.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "malformed request body", false)
		return
	}
	candidates := make([]model.CardCandidate, 0, len(req.Cards))
	for _, name := range req.Cards {
		if strings.TrimSpace(name) == "" {
			continue
		}
		candidates = append(candidates, model.CardCandidate{Name: name})
	}

	result := h.deps.RankCards(r.Context(), req.Category, req.MCC, candidates)

	top := result.Top
	if len(top) > maxRecommendations {
		top = top[:maxRecommendations]
	}
	if top == nil {
		top = []model.CardRecommendation{}
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Top:              top,
		UsedRulesVersion: result.RulesVersion,
	})
}

// Package ranking implements the rules-based card ranking engine.
//
// Given a spending category (or an MCC the rule table can map to one) and a
// candidate card set, it produces an ordered, explained recommendation list.
// The order is total: descending by score, with ties preserving the caller's
// candidate order, which is meaningful to the caller.
package ranking

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/internal/domain/rewards"
)

// Engine ranks candidate cards against the active reward rule table.
type Engine struct {
	rules *rewards.Store
}

// Result is a ranked recommendation list plus the version of the rule table
// that produced it, so clients can detect stale cached reasoning.
type Result struct {
	Top          []model.CardRecommendation
	RulesVersion string
}

// New creates a ranking engine reading rules from store.
func New(store *rewards.Store) *Engine {
	return &Engine{rules: store}
}

// Rank scores each candidate for the given category. When category is empty
// but an MCC is supplied, the table's MCC index derives the category. An
// empty candidate list yields an empty result, not an error.
func (e *Engine) Rank(_ context.Context, category, mcc string, candidates []model.CardCandidate) Result {
	table := e.rules.Current()

	if category == "" && mcc != "" {
		category = table.CategoryForMCC(mcc)
	}
	category = strings.ToLower(strings.TrimSpace(category))

	top := make([]model.CardRecommendation, 0, len(candidates))
	for _, candidate := range candidates {
		mult, matched := table.Multiplier(candidate.Name, category)
		top = append(top, model.CardRecommendation{
			Card:   candidate.Name,
			Score:  mult,
			Reason: reason(mult, category, matched),
		})
	}

	stableSortByScore(top)

	return Result{
		Top:          top,
		RulesVersion: table.Version,
	}
}

// reason names the rule that produced the score, e.g. "4x dining" or "1x base".
func reason(mult float64, category string, matched bool) string {
	if matched {
		return formatMultiplier(mult) + "x " + category
	}
	return formatMultiplier(mult) + "x base"
}

func formatMultiplier(mult float64) string {
	return strconv.FormatFloat(mult, 'f', -1, 64)
}

// stableSortByScore sorts descending by score without reordering ties.
// Stability is a correctness requirement here, not an optimization.
func stableSortByScore(recs []model.CardRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
}

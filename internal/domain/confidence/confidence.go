// Package confidence computes a trust score for a detected location visit.
//
// The score decides whether a visit is trustworthy enough to act on. It is a
// total function over valid signals: it never fails and always lands in [0,1].
package confidence

import (
	"github.com/okian/keel/internal/domain/model"
)

// Scoring constants. Each factor contributes at most one bucket.
const (
	baseScore = 0.5

	priorVisitsHighBonus = 0.3 // 5 or more prior visits
	priorVisitsMidBonus  = 0.2 // 3 or more
	priorVisitsLowBonus  = 0.1 // at least one

	dwellLongBonus  = 0.2  // more than 30 minutes
	dwellMidBonus   = 0.15 // more than 15 minutes
	dwellShortBonus = 0.1  // more than 5 minutes

	distanceFarPenalty  = 0.2  // more than 200 m from the POI
	distanceMidPenalty  = 0.15 // more than 120 m
	distanceNearPenalty = 0.1  // more than 80 m

	mealTimeBonus = 0.05

	// GateThreshold is the minimum score at which a visit is acted on.
	// Below it the caller defers and may re-evaluate the same physical
	// visit later with updated dwell and prior-visit signals.
	GateThreshold = 0.6
)

// Score maps visit signals to a trust score in [0,1].
func Score(signal model.VisitSignal) float64 {
	score := baseScore

	switch {
	case signal.PriorVisitsToMerchant >= 5:
		score += priorVisitsHighBonus
	case signal.PriorVisitsToMerchant >= 3:
		score += priorVisitsMidBonus
	case signal.PriorVisitsToMerchant >= 1:
		score += priorVisitsLowBonus
	}

	if signal.DwellMinutes != nil {
		switch dwell := *signal.DwellMinutes; {
		case dwell > 30:
			score += dwellLongBonus
		case dwell > 15:
			score += dwellMidBonus
		case dwell > 5:
			score += dwellShortBonus
		}
	}

	if signal.DistanceMetersFromPOI != nil {
		switch distance := *signal.DistanceMetersFromPOI; {
		case distance > 200:
			score -= distanceFarPenalty
		case distance > 120:
			score -= distanceMidPenalty
		case distance > 80:
			score -= distanceNearPenalty
		}
	}

	if isMealTime(signal.HourOfDay) {
		score += mealTimeBonus
	}

	return clamp(score)
}

// Trusted reports whether the score clears the gate threshold.
func Trusted(signal model.VisitSignal) bool {
	return Score(signal) >= GateThreshold
}

// isMealTime reports whether hour falls in a typical meal window:
// breakfast [8,10], lunch [12,14] or dinner [18,22].
func isMealTime(hour int) bool {
	switch {
	case hour >= 8 && hour <= 10:
		return true
	case hour >= 12 && hour <= 14:
		return true
	case hour >= 18 && hour <= 22:
		return true
	default:
		return false
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

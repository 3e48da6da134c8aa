// Package model contains domain models passed between layers.
package model

import "time"

// VisitSignal carries the raw signals of a single detected location visit.
// It is produced once per visit and consumed by the confidence scorer;
// optional signals are pointers so "absent" and "zero" stay distinct.
type VisitSignal struct {
	Latitude              float64
	Longitude             float64
	ArrivalTime           time.Time
	DistanceMetersFromPOI *float64 // distance to the matched point of interest, when known
	DwellMinutes          *float64 // minutes spent at the location so far, when known
	PriorVisitsToMerchant int      // non-negative
	HourOfDay             int      // 0..23, local time of arrival
}

// VisitEvent is the wire form of a detected visit submitted by clients.
// Fields mirror the schema for POST /v1/events/visit.
type VisitEvent struct {
	IdempotencyKey string
	Latitude       float64
	Longitude      float64
	Timestamp      time.Time
	UserID         string // optional
}

// MerchantResolution is the outcome of resolving coordinates to a merchant.
// Merchant is empty on the category-only fallback path.
type MerchantResolution struct {
	Merchant   string
	MCC        string // merchant category code, optional
	Category   string // reward category, optional
	Confidence float64
}

// RecommendationResult is the terminal output of processing one visit event.
// Fallback is true when the merchant could not be resolved and only a
// category-level ranking was produced.
type RecommendationResult struct {
	IdempotencyKey string
	Resolution     MerchantResolution
	Top            []CardRecommendation
	RulesVersion   string
	Fallback       bool
	ProcessedAt    time.Time
}

// CardCandidate names one card from the caller's wallet.
type CardCandidate struct {
	Name string
}

// CardRecommendation is one ranked entry of the pipeline's terminal output.
type CardRecommendation struct {
	Card   string  `json:"card"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

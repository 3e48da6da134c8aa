// Package simulate replays synthetic visit traffic against a running
// service and verifies the idempotent intake accounting.
package simulate

import "time"

// Config holds configuration for the visit replay.
type Config struct {
	BaseURL       string        // Base URL of the service
	NumVisits     int           // Number of unique visits to generate
	DuplicateRate float64       // Fraction of visits re-submitted a second time
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Verbose       bool          // Enable verbose logging
}

// Visit is one synthetic visit event to submit.
type Visit struct {
	IdempotencyKey string
	Lat            float64
	Lon            float64
	Timestamp      time.Time
	UserID         string
}

// Stats holds replay statistics.
type Stats struct {
	VisitsGenerated int
	Submissions     int
	Accepted        int
	Duplicates      int
	Failed          int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

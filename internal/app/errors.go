package service

import "errors"

// Sentinel errors for ingest.
var (
	// ErrQueueFull reports that the event queue rejected a visit. The
	// idempotency key has been released and the client may retry.
	ErrQueueFull = errors.New("event queue full")
)

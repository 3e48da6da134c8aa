package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for the SDK.
var (
	// ErrMissingIdempotencyKey reports a visit submission without a key.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	// ErrNoRecommendation reports that neither merchant resolution nor the
	// category fallback produced anything to rank. Terminal, not retried.
	ErrNoRecommendation = errors.New("no recommendation available")
)

// APIError is a structured error decoded from the server's error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a NO_MERCHANTS_FOUND API error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "NO_MERCHANTS_FOUND"
}

package places

import (
	"errors"
)

// Sentinel kinds for merchant resolution errors.
var (
	// ErrInvalidCoordinates marks input that must never reach the upstream
	// lookup. Never retryable.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrNoMerchants means the upstream answered but found nothing nearby.
	// Triggers the category-only fallback, not a retry.
	ErrNoMerchants = errors.New("no merchants found")

	// ErrUpstream wraps transport and server-side failures of the places
	// lookup. Retryable per the bounded retry policy.
	ErrUpstream = errors.New("places upstream failed")
)

package idempotency

import (
	"errors"
)

// Sentinel kinds for idempotency store errors.
var (
	ErrStoreUnavailable = errors.New("idempotency store unavailable")
)

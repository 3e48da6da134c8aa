// Package idempotency tracks visit idempotency keys so the pipeline runs its
// side-effecting work at most once per unique event.
//
// Records live for a configured retention window; a resubmission after expiry
// is treated as a fresh event, which is an accepted tradeoff of the retention
// boundary rather than a bug.
package idempotency

import (
	"context"
)

// Store records idempotency keys for at-most-once processing within the
// retention window.
type Store interface {
	// PutIfAbsent atomically checks whether key was seen and records it if
	// not. Returns true if the key was newly recorded (the caller won and
	// must run the pipeline), false if it already existed (duplicate).
	// Two concurrent calls for the same key see exactly one true.
	PutIfAbsent(ctx context.Context, key string) (bool, error)

	// Remove deletes a key, allowing it to be resubmitted. Used only to
	// roll back a key whose event could not be enqueued.
	Remove(ctx context.Context, key string) error

	// Size returns the approximate number of live records.
	Size(ctx context.Context) int64

	// Close releases the store's resources.
	Close() error
}

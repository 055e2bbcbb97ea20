// Package quota implements the counter backends that decide whether a caller
// may consume one more unit of its quota. A backend is a Store; cross-cutting
// behavior (shared-store failover, local block caching, burst allowances,
// even spacing) is layered on as Store wrappers around a base implementation.
package quota

import (
	"context"
	"time"
)

// Quota is the (limit, window, block-duration) triple governing one bucket of
// consumption. Immutable once the engine is initialized.
type Quota struct {
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
}

// Result reports the outcome of a single consumption attempt.
type Result struct {
	Allowed   bool
	Remaining int           // units left in the window, never negative
	Consumed  int           // units consumed so far in the window, this attempt included
	ResetIn   time.Duration // time until the window (or block) expires
	Limit     int
}

// Store is the consumption contract shared by every backend and wrapper.
// Implementations must be safe for concurrent use. A returned error means the
// backend could not make a decision; callers are expected to fail open.
type Store interface {
	// Consume spends one unit for key under q and reports the outcome.
	Consume(ctx context.Context, key string, q Quota) (Result, error)

	// Close releases backend connections and stops background goroutines.
	Close() error
}

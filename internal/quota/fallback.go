package quota

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// FallbackStore consumes from a primary (shared) store and transparently
// falls back to an in-process insurance store whenever the primary errors.
// The primary is retried on every call, so recovery is automatic the moment
// the shared backend answers again. Callers never see a primary failure.
type FallbackStore struct {
	primary   Store
	insurance Store
	degraded  atomic.Bool

	// onFallback, when set, is notified once per consumption served by the
	// insurance store. Used for metrics.
	onFallback func(ctx context.Context)
}

// NewFallbackStore wires a primary store to its insurance fallback.
func NewFallbackStore(primary, insurance Store) *FallbackStore {
	return &FallbackStore{primary: primary, insurance: insurance}
}

// OnFallback registers a callback invoked for every insurance consumption.
func (f *FallbackStore) OnFallback(fn func(ctx context.Context)) {
	f.onFallback = fn
}

func (f *FallbackStore) Consume(ctx context.Context, key string, q Quota) (Result, error) {
	res, err := f.primary.Consume(ctx, key, q)
	if err == nil {
		if f.degraded.CompareAndSwap(true, false) {
			slog.Info("shared quota store recovered, leaving insurance mode")
		}
		return res, nil
	}

	if f.degraded.CompareAndSwap(false, true) {
		slog.Warn("shared quota store unreachable, consuming from insurance store", "error", err)
	}
	if f.onFallback != nil {
		f.onFallback(ctx)
	}

	return f.insurance.Consume(ctx, key, q)
}

// Degraded reports whether the last consumption was served by the insurance
// store.
func (f *FallbackStore) Degraded() bool {
	return f.degraded.Load()
}

func (f *FallbackStore) Close() error {
	err := f.primary.Close()
	if ierr := f.insurance.Close(); err == nil {
		err = ierr
	}
	return err
}

package quota

import (
	"context"
	"sync"
	"time"
)

// maxBlockEntries bounds the local block map regardless of attack volume.
const maxBlockEntries = 10000

type blockEntry struct {
	until    time.Time
	consumed int
	limit    int
}

// BlockCache rejects known-abusive keys from local memory without contacting
// the wrapped store. A key is cached once a rejected consumption shows it has
// consumed at least factor x limit within the window; it stays cached for the
// configured duration. This is an optimization for the shared-backend mode:
// a client hammering the service stops costing a network round trip per hit.
//
// Units consumed through a burst allowance count toward the factor threshold,
// since the wrapped chain reports the combined total.
type BlockCache struct {
	next     Store
	factor   float64
	duration time.Duration

	mu      sync.Mutex
	blocked map[string]blockEntry

	now func() time.Time
}

// NewBlockCache wraps next with a local block cache. A factor below 1 is
// raised to the default of 2.
func NewBlockCache(next Store, factor float64, duration time.Duration) *BlockCache {
	if factor < 1 {
		factor = 2.0
	}
	return &BlockCache{
		next:     next,
		factor:   factor,
		duration: duration,
		blocked:  make(map[string]blockEntry),
		now:      time.Now,
	}
}

func (b *BlockCache) Consume(ctx context.Context, key string, q Quota) (Result, error) {
	now := b.now()

	b.mu.Lock()
	if e, ok := b.blocked[key]; ok {
		if now.Before(e.until) {
			e.consumed++
			b.blocked[key] = e
			b.mu.Unlock()
			return Result{
				Allowed:   false,
				Remaining: 0,
				Consumed:  e.consumed,
				ResetIn:   e.until.Sub(now),
				Limit:     e.limit,
			}, nil
		}
		delete(b.blocked, key)
	}
	b.mu.Unlock()

	res, err := b.next.Consume(ctx, key, q)
	if err != nil {
		return res, err
	}

	if !res.Allowed && float64(res.Consumed) >= b.factor*float64(res.Limit) {
		b.mu.Lock()
		if len(b.blocked) < maxBlockEntries {
			b.blocked[key] = blockEntry{
				until:    now.Add(b.duration),
				consumed: res.Consumed,
				limit:    res.Limit,
			}
		}
		b.mu.Unlock()
	}

	return res, nil
}

func (b *BlockCache) Close() error {
	return b.next.Close()
}

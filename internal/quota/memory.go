package quota

import (
	"context"
	"sync"
	"time"
)

// bucket tracks one key's consumption inside the current fixed window.
type bucket struct {
	count        int
	windowEnd    time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// MemoryStore is an in-process fixed-window counter. Each key gets its own
// bucket; a background goroutine periodically evicts buckets that have not
// been touched within 2x the cleanup interval. Counters are not shared across
// process instances.
type MemoryStore struct {
	cleanupInterval time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	closed  bool

	now func() time.Time
}

// NewMemoryStore creates a memory store and starts its eviction goroutine.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	m := &MemoryStore{
		cleanupInterval: cleanupInterval,
		buckets:         make(map[string]*bucket),
		done:            make(chan struct{}),
		now:             time.Now,
	}
	go m.cleanup()
	return m
}

// Consume spends one unit for key under q. The first q.Limit consumptions in
// a window succeed; further attempts are rejected until the window resets or,
// when q.BlockDuration is set, until the penalty expires.
func (m *MemoryStore) Consume(_ context.Context, key string, q Quota) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{}
		m.buckets[key] = b
	}
	b.lastSeen = now

	if now.Before(b.blockedUntil) {
		return Result{
			Allowed:   false,
			Remaining: 0,
			Consumed:  b.count,
			ResetIn:   b.blockedUntil.Sub(now),
			Limit:     q.Limit,
		}, nil
	}

	if !now.Before(b.windowEnd) {
		b.count = 0
		b.windowEnd = now.Add(q.Window)
		b.blockedUntil = time.Time{}
	}

	b.count++

	if b.count <= q.Limit {
		return Result{
			Allowed:   true,
			Remaining: q.Limit - b.count,
			Consumed:  b.count,
			ResetIn:   b.windowEnd.Sub(now),
			Limit:     q.Limit,
		}, nil
	}

	resetIn := b.windowEnd.Sub(now)
	if q.BlockDuration > 0 {
		until := now.Add(q.BlockDuration)
		if until.After(b.blockedUntil) {
			b.blockedUntil = until
		}
		if b.blockedUntil.Sub(now) > resetIn {
			resetIn = b.blockedUntil.Sub(now)
		}
	}

	return Result{
		Allowed:   false,
		Remaining: 0,
		Consumed:  b.count,
		ResetIn:   resetIn,
		Limit:     q.Limit,
	}, nil
}

// Close stops the background eviction goroutine. Safe to call twice.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes buckets idle for more than 2x the cleanup interval.
// A blocked bucket is kept until its penalty has expired.
func (m *MemoryStore) evictStale() {
	now := m.now()
	cutoff := now.Add(-2 * m.cleanupInterval)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) && now.After(b.blockedUntil) {
			delete(m.buckets, key)
		}
	}
}

package quota

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer is one key's spacing state.
type pacer struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// PacedStore implements even spacing: instead of rejecting a consumption that
// exceeded capacity, it holds the request for a computed delay and then lets
// it through, spreading over-limit load across the window. Delays come from a
// per-key token bucket refilling at the quota rate; the configured minimum
// delay is a floor on every wait. A background goroutine evicts pacers that
// have not been touched within 2x the cleanup interval, so the map stays
// bounded no matter how many distinct keys pass through.
type PacedStore struct {
	next            Store
	minDelay        time.Duration
	cleanupInterval time.Duration

	mu     sync.Mutex
	pacers map[string]*pacer
	done   chan struct{}
	closed bool

	now func() time.Time
}

// NewPacedStore wraps next with even-spacing behavior and starts the pacer
// eviction goroutine.
func NewPacedStore(next Store, minDelay time.Duration) *PacedStore {
	p := &PacedStore{
		next:            next,
		minDelay:        minDelay,
		cleanupInterval: 5 * time.Minute,
		pacers:          make(map[string]*pacer),
		done:            make(chan struct{}),
		now:             time.Now,
	}
	go p.cleanup()
	return p
}

func (p *PacedStore) Consume(ctx context.Context, key string, q Quota) (Result, error) {
	res, err := p.next.Consume(ctx, key, q)
	if err != nil || res.Allowed {
		return res, err
	}

	delay := p.reserve(key, q)
	if delay < p.minDelay {
		delay = p.minDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// The caller went away mid-wait; report the original rejection.
		return res, nil
	case <-timer.C:
	}

	res.Allowed = true
	res.Remaining = 0
	return res, nil
}

// reserve returns how long the key must wait for its next evenly-spaced slot.
func (p *PacedStore) reserve(key string, q Quota) time.Duration {
	p.mu.Lock()
	pc, ok := p.pacers[key]
	if !ok {
		perUnit := q.Window / time.Duration(q.Limit)
		pc = &pacer{lim: rate.NewLimiter(rate.Every(perUnit), 1)}
		p.pacers[key] = pc
	}
	pc.lastSeen = p.now()
	p.mu.Unlock()

	return pc.lim.Reserve().Delay()
}

// Close stops the eviction goroutine and closes the wrapped store.
// Safe to call twice.
func (p *PacedStore) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
	return p.next.Close()
}

func (p *PacedStore) cleanup() {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.evictStale()
		}
	}
}

// evictStale removes pacers idle for more than 2x the cleanup interval.
// An evicted key that returns simply starts a fresh spacing schedule.
func (p *PacedStore) evictStale() {
	cutoff := p.now().Add(-2 * p.cleanupInterval)
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, pc := range p.pacers {
		if pc.lastSeen.Before(cutoff) {
			delete(p.pacers, key)
		}
	}
}

// Package warnings decides when a threshold-crossing warning should fire for
// an identity, suppressing repeats for the remainder of the quota window.
package warnings

import (
	"container/list"
	"sync"
	"time"
)

// maxEntries caps the suppression map; inserting past the cap evicts the
// oldest entry by insertion order.
const maxEntries = 10000

type suppression struct {
	key     string
	expires time.Time
}

// Deduplicator tracks which keys already received a warning in the current
// window. Safe for concurrent use.
type Deduplicator struct {
	threshold float64

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // *suppression, oldest insertion at the front

	now func() time.Time
}

// NewDeduplicator creates a deduplicator firing at the given consumed/limit
// ratio. A threshold of 0 disables warnings entirely.
func NewDeduplicator(threshold float64) *Deduplicator {
	return &Deduplicator{
		threshold: threshold,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		now:       time.Now,
	}
}

// ShouldWarn reports whether a warning should fire for key, given that it has
// consumed units out of limit within a window of the given length. The
// threshold comparison is boundary-inclusive. A true result arms a
// suppression entry that mutes the key until the window would have elapsed;
// an existing live entry is never refreshed.
func (d *Deduplicator) ShouldWarn(key string, consumed, limit int, window time.Duration) bool {
	if d.threshold == 0 || limit <= 0 {
		return false
	}
	if float64(consumed)/float64(limit) < d.threshold {
		return false
	}

	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.entries[key]; ok {
		s := elem.Value.(*suppression)
		if now.Before(s.expires) {
			return false
		}
		d.order.Remove(elem)
		delete(d.entries, key)
	}

	if len(d.entries) >= maxEntries {
		oldest := d.order.Front()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.entries, oldest.Value.(*suppression).key)
		}
	}

	d.entries[key] = d.order.PushBack(&suppression{key: key, expires: now.Add(window)})
	return true
}

// Len returns the number of live suppression entries. Expired entries still
// pending lazy deletion are counted.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

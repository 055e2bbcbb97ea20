// Package events keeps a bounded audit trail of blocking and warning
// occurrences for operator inspection.
package events

import (
	"sync"
	"time"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 100

// Event types.
const (
	TypeBlocked = "blocked"
	TypeWarning = "warning"
)

// Quota scope sources.
const (
	SourceGlobal = "global"
	SourceRoute  = "route"
)

// Event is one blocking or warning occurrence.
type Event struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Consumed  int       `json:"consumed"`
	Limit     int       `json:"limit"`
	ResetInMs int64     `json:"resetInMs"`
}

// Recorder is a fixed-capacity circular event log. Recording past capacity
// evicts the oldest entries; the lifetime total keeps counting regardless.
// Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	buf      []Event
	head     int // next write position
	size     int
	total    uint64
	nextID   uint64
	capacity int

	now func() time.Time
}

// NewRecorder creates a recorder holding at most capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		buf:      make([]Event, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record appends an event, assigning its id and timestamp.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e.ID = r.nextID
	e.Timestamp = r.now()

	r.buf[r.head] = e
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.total++
}

// Snapshot returns the retained events newest-first, the lifetime total
// (evicted events included) and the ring capacity.
func (r *Recorder) Snapshot() (events []Event, total uint64, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events = make([]Event, 0, r.size)
	for i := 1; i <= r.size; i++ {
		idx := (r.head - i + r.capacity) % r.capacity
		events = append(events, r.buf[idx])
	}
	return events, r.total, r.capacity
}

// Clear empties the ring and resets both the lifetime total and the id
// counter, so the recorder behaves as if freshly constructed.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.size = 0
	r.total = 0
	r.nextID = 0
}

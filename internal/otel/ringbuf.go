package otel

import "sync"

// DefaultRingSize is the capacity used when none is given.
const DefaultRingSize = 512

// RingBuffer keeps the most recent events in memory for the debug overlay.
// Goroutine-safe.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	head  int // next write position
	count int
}

// NewRingBuffer creates a ring buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push appends e, evicting the oldest event when full. Extra is copied so
// the caller may keep mutating its map.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// at returns the i-th oldest event. Caller holds r.mu.
func (r *RingBuffer) at(i int) Event {
	start := 0
	if r.count == len(r.buf) {
		start = r.head
	}
	return r.buf[(start+i)%len(r.buf)]
}

// Snapshot returns all events, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	return r.LastMatching(-1, nil)
}

// Last returns up to n of the newest events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	return r.LastMatching(n, nil)
}

// LastMatching returns up to n of the newest events accepted by keep, oldest
// first. A negative n means no limit; a nil keep accepts everything.
func (r *RingBuffer) LastMatching(n int, keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for i := r.count - 1; i >= 0 && (n < 0 || len(out) < n); i-- {
		e := r.at(i)
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the capacity.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	for i := 0; i < r.count; i++ {
		counts[r.at(i).Kind]++
	}
	return counts
}

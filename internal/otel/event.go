// Package otel records what the search session did as structured events.
//
// Events are serialized as JSONL lines by an async Logger, and optionally
// mirrored into a RingBuffer that the TUI debug overlay reads. Every query
// event carries the dispatch generation and the request id sent to the
// backend, so one search can be followed across the log and the server.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind is "<subsystem>.<action>".
type EventKind string

const (
	// Query dispatch lifecycle
	KindQueryDispatch EventKind = "query.dispatch"
	KindQueryComplete EventKind = "query.complete"
	KindQueryError    EventKind = "query.error"
	KindQueryStale    EventKind = "query.stale"

	// Search session
	KindSearchDebounce EventKind = "search.debounce"
	KindSearchReset    EventKind = "search.reset"
	KindSearchLookup   EventKind = "search.lookup"

	// Auth
	KindAuthLogin    EventKind = "auth.login"
	KindAuthRegister EventKind = "auth.register"

	// UI
	KindKeyPress EventKind = "ui.key"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is one observability record. Only Kind and Time are always set.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"` // "search", "dispatch", "ui", "auth", "main"
	SessionID string         `json:"session_id,omitempty"`
	Gen       uint64         `json:"gen,omitempty"` // dispatch generation
	QueryID   string         `json:"qid,omitempty"` // request id sent as X-Request-ID
	Intent    string         `json:"intent,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON converts Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// IsQuery reports whether the event belongs to the query lifecycle.
func (e Event) IsQuery() bool {
	switch e.Kind {
	case KindQueryDispatch, KindQueryComplete, KindQueryError, KindQueryStale:
		return true
	}
	return false
}

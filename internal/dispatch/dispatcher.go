// Package dispatch turns a query intent into exactly one backend call and
// decides whether its answer still matters when it arrives.
//
// Every Dispatch bumps a generation counter. A Result is current only if its
// generation is still the latest, so the most recently issued query wins no
// matter in which order the responses come back. Superseded requests also
// have their context cancelled, but correctness never depends on that.
package dispatch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/abelbrown/patientdesk/internal/api"
	"github.com/abelbrown/patientdesk/internal/otel"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/query"
)

// API is the backend as seen by the dispatcher. *api.Client implements it.
type API interface {
	ListPatients(ctx context.Context) ([]patient.Record, error)
	FilterPatients(ctx context.Context, name string, bornOnOrBefore patient.Date) ([]patient.Record, error)
	SortPatients(ctx context.Context, key patient.SortKey) ([]patient.Record, error)
	GetPatient(ctx context.Context, id string) (patient.Record, error)
}

// Ticket identifies one dispatch.
type Ticket struct {
	Gen       uint64
	RequestID string
	Intent    query.Intent
}

// Result is the message a dispatch command produces.
type Result struct {
	Ticket
	Records []patient.Record // nil on failure
	Err     error
	Dur     time.Duration
}

// Dispatcher issues requests and tracks the current generation.
// Dispatch, Current and Close must be called from one goroutine (the
// Bubble Tea update loop); the returned commands run anywhere.
type Dispatcher struct {
	api    API
	parent context.Context
	events *otel.Logger
	newID  func() string

	gen    uint64
	cancel context.CancelFunc
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEvents records query events to l.
func WithEvents(l *otel.Logger) Option {
	return func(d *Dispatcher) { d.events = l }
}

// WithContext sets the parent context of every request.
func WithContext(ctx context.Context) Option {
	return func(d *Dispatcher) {
		if ctx != nil {
			d.parent = ctx
		}
	}
}

// WithRequestIDs replaces the request id generator (tests).
func WithRequestIDs(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// New creates a Dispatcher.
func New(a API, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		api:    a,
		parent: context.Background(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch supersedes any in-flight request and returns a command that
// performs exactly one call for intent. After Close it returns a nil command.
func (d *Dispatcher) Dispatch(intent query.Intent) (Ticket, tea.Cmd) {
	if d.closed {
		return Ticket{}, nil
	}
	if d.cancel != nil {
		d.cancel()
	}

	d.gen++
	ticket := Ticket{Gen: d.gen, RequestID: d.newID(), Intent: intent}
	ctx, cancel := context.WithCancel(api.WithRequestID(d.parent, ticket.RequestID))
	d.cancel = cancel

	d.events.Emit(otel.Event{
		Level:   otel.LevelInfo,
		Kind:    otel.KindQueryDispatch,
		Comp:    "dispatch",
		Gen:     ticket.Gen,
		QueryID: ticket.RequestID,
		Intent:  intent.String(),
	})

	a := d.api
	return ticket, func() tea.Msg {
		start := time.Now()
		records, err := call(ctx, a, intent)
		return Result{Ticket: ticket, Records: records, Err: err, Dur: time.Since(start)}
	}
}

// call performs the request for intent. A lookup yields a one-element slice.
func call(ctx context.Context, a API, intent query.Intent) ([]patient.Record, error) {
	switch intent.Mode {
	case query.ModeFilter:
		return a.FilterPatients(ctx, intent.NamePattern, intent.BornOnOrBefore)
	case query.ModeSort:
		return a.SortPatients(ctx, intent.SortKey)
	case query.ModeLookup:
		rec, err := a.GetPatient(ctx, intent.ID)
		if err != nil {
			return nil, err
		}
		return []patient.Record{rec}, nil
	default:
		return a.ListPatients(ctx)
	}
}

// Current reports whether gen is the latest dispatch and the dispatcher is
// still open.
func (d *Dispatcher) Current(gen uint64) bool {
	return !d.closed && gen != 0 && gen == d.gen
}

// Gen returns the latest generation, 0 before the first dispatch.
func (d *Dispatcher) Gen() uint64 { return d.gen }

// Observe records the outcome of r and reports whether it is current.
// Stale results are logged and should be dropped by the caller.
func (d *Dispatcher) Observe(r Result) bool {
	ev := otel.Event{
		Comp:    "dispatch",
		Gen:     r.Gen,
		QueryID: r.RequestID,
		Intent:  r.Intent.String(),
		Dur:     r.Dur,
	}
	if !d.Current(r.Gen) {
		ev.Level, ev.Kind = otel.LevelDebug, otel.KindQueryStale
		ev.Extra = map[string]any{"current_gen": d.gen}
		d.events.Emit(ev)
		return false
	}
	// The current request is done; release its context.
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if r.Err != nil {
		ev.Level, ev.Kind, ev.Err = otel.LevelWarn, otel.KindQueryError, r.Err.Error()
	} else {
		ev.Level, ev.Kind, ev.Count = otel.LevelInfo, otel.KindQueryComplete, len(r.Records)
	}
	d.events.Emit(ev)
	return true
}

// Close cancels the in-flight request and makes every result stale.
func (d *Dispatcher) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Fallback messages per query mode.
const (
	MsgLoadFailed   = "Failed to load patients."
	MsgFilterFailed = "Failed to filter patients."
	MsgSortFailed   = "Failed to sort patients."
	MsgNotFound     = "Patient not found."
)

// FailureMessage is the user-facing text for a failed query: the server's
// message when it sent one, otherwise a fixed message for the mode.
func FailureMessage(err error, mode query.Mode) string {
	if msg := api.ServerMessage(err); msg != "" {
		return msg
	}
	switch mode {
	case query.ModeFilter:
		return MsgFilterFailed
	case query.ModeSort:
		return MsgSortFailed
	case query.ModeLookup:
		return MsgNotFound
	default:
		return MsgLoadFailed
	}
}

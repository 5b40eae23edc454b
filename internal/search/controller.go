// Package search coordinates the patient search view: it owns the session
// state, debounces the name field, resolves the active query and applies
// only the answer to the most recently issued request.
//
// The Controller is driven from a Bubble Tea update loop. Every mutator
// returns the tea.Cmd that carries the resulting asynchronous work (a
// debounce tick or a backend call), and Update consumes the messages those
// commands produce. Nothing here blocks.
package search

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/patientdesk/internal/debounce"
	"github.com/abelbrown/patientdesk/internal/dispatch"
	"github.com/abelbrown/patientdesk/internal/otel"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/query"
)

// nameKey tags the name field's debounce ticks.
const nameKey = "search.name"

// State is the session state of one search view.
type State struct {
	NameInput     string
	DOBInput      string // raw text; only a full YYYY-MM-DD date filters
	SortKey       patient.SortKey
	IDInput       string
	DebouncedName string
	Results       []patient.Record
	Loading       bool
	LastError     string
}

// Options configures a Controller.
type Options struct {
	Delay      time.Duration     // name debounce; 0 means debounce.DefaultDelay
	Tick       debounce.TickFunc // nil means tea.Tick
	Events     *otel.Logger      // optional
	Context    context.Context   // parent of every request; nil means Background
	RequestIDs func() string     // nil means random UUIDs
}

// Controller is the search session. Not goroutine-safe.
type Controller struct {
	state      State
	name       *debounce.Debouncer[string]
	dispatcher *dispatch.Dispatcher
	events     *otel.Logger

	last    query.Intent // last dispatched intent
	hasLast bool
	closed  bool
}

// New creates a Controller backed by a. Call Init to issue the first listing.
func New(a dispatch.API, opts Options) *Controller {
	var debOpts []debounce.Option[string]
	if opts.Tick != nil {
		debOpts = append(debOpts, debounce.WithTick[string](opts.Tick))
	}
	dispOpts := []dispatch.Option{
		dispatch.WithEvents(opts.Events),
		dispatch.WithContext(opts.Context),
		dispatch.WithRequestIDs(opts.RequestIDs),
	}
	return &Controller{
		state:      State{Results: []patient.Record{}},
		name:       debounce.New(nameKey, opts.Delay, "", debOpts...),
		dispatcher: dispatch.New(a, dispOpts...),
		events:     opts.Events,
	}
}

// Init lists every patient, as on view mount.
func (c *Controller) Init() tea.Cmd {
	if c.closed {
		return nil
	}
	return c.dispatch(query.ListAll())
}

// SetName records the raw name and restarts the debounce wait. The query
// only follows once the name has been stable for the debounce delay.
func (c *Controller) SetName(v string) tea.Cmd {
	if c.closed || v == c.state.NameInput {
		return nil
	}
	c.state.NameInput = v
	return c.name.Set(v)
}

// SetDateOfBirth records the raw date text and re-resolves immediately.
func (c *Controller) SetDateOfBirth(v string) tea.Cmd {
	if c.closed {
		return nil
	}
	c.state.DOBInput = v
	return c.resolve()
}

// SetSortKey records the sort selection and re-resolves immediately.
func (c *Controller) SetSortKey(k patient.SortKey) tea.Cmd {
	if c.closed {
		return nil
	}
	c.state.SortKey = k
	return c.resolve()
}

// SetID records the lookup id. Nothing is fetched until Lookup.
func (c *Controller) SetID(v string) {
	if c.closed {
		return
	}
	c.state.IDInput = v
}

// Lookup fetches the patient whose id is in the id field. A blank id is a
// no-op. The other inputs are left alone.
func (c *Controller) Lookup() tea.Cmd {
	id := strings.TrimSpace(c.state.IDInput)
	if c.closed || id == "" {
		return nil
	}
	c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSearchLookup, Comp: "search", Msg: id})
	return c.dispatch(query.LookupByID(id))
}

// ClearAll resets every input, cancels a pending name propagation and lists
// all patients again, superseding whatever is in flight.
func (c *Controller) ClearAll() tea.Cmd {
	if c.closed {
		return nil
	}
	c.state.NameInput = ""
	c.state.DOBInput = ""
	c.state.SortKey = patient.SortNone
	c.state.IDInput = ""
	c.name.Reset("")
	c.state.DebouncedName = ""
	c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSearchReset, Comp: "search"})
	return c.dispatch(query.ListAll())
}

// Update applies a debounce tick or a dispatch result. Other messages are
// ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	if c.closed {
		return nil
	}
	switch msg := msg.(type) {
	case debounce.Settled[string]:
		if !c.name.Settle(msg) {
			return nil
		}
		c.state.DebouncedName = c.name.Value()
		c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindSearchDebounce, Comp: "search", Msg: c.state.DebouncedName})
		return c.resolve()

	case dispatch.Result:
		if !c.dispatcher.Observe(msg) {
			return nil
		}
		c.apply(msg)
	}
	return nil
}

func (c *Controller) apply(r dispatch.Result) {
	c.state.Loading = false
	if r.Err != nil {
		c.state.LastError = dispatch.FailureMessage(r.Err, r.Intent.Mode)
		if r.Intent.Mode == query.ModeLookup {
			c.state.Results = []patient.Record{}
		}
		return
	}
	c.state.Results = r.Records
	if c.state.Results == nil {
		c.state.Results = []patient.Record{}
	}
}

// resolve dispatches the resolved intent unless it is already the last one
// dispatched.
func (c *Controller) resolve() tea.Cmd {
	dob, err := patient.ParseDate(c.state.DOBInput)
	if err != nil {
		dob = ""
	}
	intent := query.Resolve(c.state.DebouncedName, dob, c.state.SortKey)
	if c.hasLast && intent == c.last {
		return nil
	}
	return c.dispatch(intent)
}

func (c *Controller) dispatch(intent query.Intent) tea.Cmd {
	_, cmd := c.dispatcher.Dispatch(intent)
	if cmd == nil {
		return nil
	}
	c.last, c.hasLast = intent, true
	c.state.Loading = true
	c.state.LastError = ""
	return cmd
}

// Close tears the session down. Pending ticks and in-flight results become
// inert and every later call is a no-op.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.name.Close()
	c.dispatcher.Close()
}

// State returns a copy of the session state.
func (c *Controller) State() State {
	s := c.state
	s.Results = append([]patient.Record(nil), c.state.Results...)
	if s.Results == nil {
		s.Results = []patient.Record{}
	}
	return s
}

// LastIntent returns the most recently dispatched intent.
func (c *Controller) LastIntent() (query.Intent, bool) { return c.last, c.hasLast }

// Generation returns the current dispatch generation.
func (c *Controller) Generation() uint64 { return c.dispatcher.Gen() }

// NamePending reports whether a name edit is still waiting out the debounce.
func (c *Controller) NamePending() bool { return c.name.Pending() }

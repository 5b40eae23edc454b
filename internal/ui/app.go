// Package ui is the Bubble Tea front end of the patient search view.
//
// App owns the widgets and forwards every edit to a search.Controller; it
// never talks to the backend itself. All state that matters (inputs, results,
// loading, errors) lives in the controller, and App re-renders from its View.
package ui

import (
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/patientdesk/internal/otel"
	"github.com/abelbrown/patientdesk/internal/search"
)

// field identifies a focusable form control.
type field int

const (
	fieldName field = iota
	fieldDOB
	fieldSort
	fieldID
	fieldCount
)

// chromeLines is everything above and below the results table: title,
// four form rows, a blank line, the status line and the status bar.
const chromeLines = 8

// Options wires an App.
type Options struct {
	Controller *search.Controller
	Ring       *otel.RingBuffer // nil disables the debug overlay
	Events     *otel.Logger     // optional
	User       string           // shown in the header
}

// App is the root Bubble Tea model.
type App struct {
	ctrl   *search.Controller
	ring   *otel.RingBuffer
	events *otel.Logger
	user   string

	name    textinput.Model
	dob     textinput.Model
	id      textinput.Model
	focus   field
	table   table.Model
	spinner spinner.Model

	width     int
	height    int
	ready     bool
	showDebug bool
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 40
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

// NewApp creates the search screen around ctrl.
func NewApp(opts Options) App {
	s := spinner.New()
	s.Spinner = spinner.Dot

	a := App{
		ctrl:    opts.Controller,
		ring:    opts.Ring,
		events:  opts.Events,
		user:    opts.User,
		name:    newInput("Search by name", 120),
		dob:     newInput("YYYY-MM-DD (born on or before)", 10),
		id:      newInput("Patient id, then Enter", 64),
		spinner: s,
		table: table.New(
			table.WithColumns(columns(80)),
			table.WithFocused(true),
			table.WithHeight(10),
			table.WithStyles(tableStyles()),
		),
	}
	a.name.Focus()
	return a
}

// Init issues the initial listing.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.ctrl.Init(), a.spinner.Tick)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	cmd := a.ctrl.Update(msg)
	a.syncRows()
	return a, cmd
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if otel.TraceEnabled() {
		a.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindKeyPress, Comp: "ui", Msg: msg.String()})
	}

	switch msg.String() {
	case "ctrl+c", "esc":
		a.ctrl.Close()
		return a, tea.Quit

	case "ctrl+o":
		if a.ring != nil {
			a.showDebug = !a.showDebug
		}
		return a, nil

	case "ctrl+r":
		a.name.Reset()
		a.dob.Reset()
		a.id.Reset()
		cmd := a.ctrl.ClearAll()
		a.syncRows()
		return a, cmd

	case "tab":
		a.setFocus((a.focus + 1) % fieldCount)
		return a, nil

	case "shift+tab":
		a.setFocus((a.focus + fieldCount - 1) % fieldCount)
		return a, nil

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		a.table, cmd = a.table.Update(msg)
		return a, cmd
	}

	switch a.focus {
	case fieldSort:
		switch msg.String() {
		case "right", "left", " ", "enter":
			next := a.ctrl.State().SortKey.Next()
			if msg.String() == "left" {
				next = next.Next()
			}
			cmd := a.ctrl.SetSortKey(next)
			a.syncRows()
			return a, cmd
		}
		return a, nil

	case fieldID:
		if msg.String() == "enter" {
			cmd := a.ctrl.Lookup()
			a.syncRows()
			return a, cmd
		}
		var cmd tea.Cmd
		a.id, cmd = a.id.Update(msg)
		a.ctrl.SetID(a.id.Value())
		return a, cmd

	case fieldDOB:
		before := a.dob.Value()
		var cmd tea.Cmd
		a.dob, cmd = a.dob.Update(msg)
		if a.dob.Value() == before {
			return a, cmd
		}
		ctrlCmd := a.ctrl.SetDateOfBirth(a.dob.Value())
		a.syncRows()
		return a, tea.Batch(cmd, ctrlCmd)

	default:
		var cmd tea.Cmd
		a.name, cmd = a.name.Update(msg)
		return a, tea.Batch(cmd, a.ctrl.SetName(a.name.Value()))
	}
}

func (a *App) setFocus(f field) {
	a.focus = f
	a.name.Blur()
	a.dob.Blur()
	a.id.Blur()
	switch f {
	case fieldName:
		a.name.Focus()
	case fieldDOB:
		a.dob.Focus()
	case fieldID:
		a.id.Focus()
	}
}

func (a *App) resize() {
	h := a.height - chromeLines
	if h < 3 {
		h = 3
	}
	a.table.SetHeight(h)
	a.table.SetColumns(columns(a.width))
	a.table.SetWidth(a.width)
}

func (a *App) syncRows() {
	a.table.SetRows(rows(a.ctrl.View().Results))
	if a.table.Cursor() >= len(a.table.Rows()) {
		a.table.SetCursor(0)
	}
}

// DebugVisible reports whether the overlay is shown (for testing).
func (a App) DebugVisible() bool { return a.showDebug }

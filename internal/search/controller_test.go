package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/patientdesk/internal/api"
	"github.com/abelbrown/patientdesk/internal/dispatch"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/query"
)

// fakeClock collects scheduled ticks and fires them when advanced.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at    time.Duration
	fn    func(time.Time) tea.Msg
	fired bool
}

func (c *fakeClock) tick(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	c.timers = append(c.timers, &fakeTimer{at: c.now + d, fn: fn})
	return func() tea.Msg { return nil }
}

func (c *fakeClock) advance(d time.Duration) []tea.Msg {
	c.now += d
	var msgs []tea.Msg
	for _, tm := range c.timers {
		if !tm.fired && tm.at <= c.now {
			tm.fired = true
			msgs = append(msgs, tm.fn(time.Time{}))
		}
	}
	return msgs
}

// fakeAPI answers every call from a per-call script and logs what it saw.
type fakeAPI struct {
	calls  []string
	answer func(call string) ([]patient.Record, error)
}

func (f *fakeAPI) do(call string) ([]patient.Record, error) {
	f.calls = append(f.calls, call)
	if f.answer != nil {
		return f.answer(call)
	}
	return []patient.Record{{ID: call, Name: call}}, nil
}

func (f *fakeAPI) ListPatients(context.Context) ([]patient.Record, error) { return f.do("list") }

func (f *fakeAPI) FilterPatients(_ context.Context, name string, dob patient.Date) ([]patient.Record, error) {
	return f.do(fmt.Sprintf("filter(%s,%s)", name, dob))
}

func (f *fakeAPI) SortPatients(_ context.Context, key patient.SortKey) ([]patient.Record, error) {
	return f.do("sort(" + string(key) + ")")
}

func (f *fakeAPI) GetPatient(_ context.Context, id string) (patient.Record, error) {
	recs, err := f.do("get(" + id + ")")
	if err != nil {
		return patient.Record{}, err
	}
	return recs[0], nil
}

type harness struct {
	t     *testing.T
	c     *Controller
	api   *fakeAPI
	clock *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, api: &fakeAPI{}, clock: &fakeClock{}}
	h.c = New(h.api, Options{Delay: 300 * time.Millisecond, Tick: h.clock.tick})
	return h
}

// run executes cmd and returns its dispatch result. Fails if cmd is nil or
// produces something else.
func (h *harness) run(cmd tea.Cmd) dispatch.Result {
	h.t.Helper()
	if cmd == nil {
		h.t.Fatal("expected a command, got nil")
	}
	res, ok := cmd().(dispatch.Result)
	if !ok {
		h.t.Fatal("command did not produce a dispatch.Result")
	}
	return res
}

// settle advances the clock and hands every due tick to the controller,
// returning the commands they produced.
func (h *harness) settle(d time.Duration) []tea.Cmd {
	var cmds []tea.Cmd
	for _, msg := range h.clock.advance(d) {
		if cmd := h.c.Update(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func (h *harness) mount() {
	h.t.Helper()
	h.c.Update(h.run(h.c.Init()))
	h.api.calls = nil
}

func TestInitListsAll(t *testing.T) {
	h := newHarness(t)

	cmd := h.c.Init()
	if !h.c.State().Loading {
		t.Error("expected Loading after Init")
	}
	h.c.Update(h.run(cmd))

	s := h.c.State()
	if s.Loading {
		t.Error("Loading should clear on success")
	}
	if len(s.Results) != 1 || s.Results[0].ID != "list" {
		t.Errorf("results = %+v", s.Results)
	}
}

func TestNameBurstDispatchesOnlyFinalValue(t *testing.T) {
	h := newHarness(t)
	h.mount()

	for _, v := range []string{"S", "Sm", "Smi", "Smit", "Smith"} {
		h.c.SetName(v)
		if cmds := h.settle(100 * time.Millisecond); len(cmds) != 0 {
			t.Fatalf("dispatched during burst at %q", v)
		}
	}
	if len(h.api.calls) != 0 {
		t.Fatalf("calls during burst: %v", h.api.calls)
	}

	if cmds := h.settle(199 * time.Millisecond); len(cmds) != 0 {
		t.Fatal("dispatched before the debounce delay elapsed")
	}
	cmds := h.settle(time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(cmds))
	}
	h.c.Update(h.run(cmds[0]))

	if want := []string{"filter(Smith,)"}; len(h.api.calls) != 1 || h.api.calls[0] != want[0] {
		t.Errorf("calls = %v, want %v", h.api.calls, want)
	}
	if got := h.c.State().DebouncedName; got != "Smith" {
		t.Errorf("DebouncedName = %q, want Smith", got)
	}
}

func TestSmithWaitsFullDelay(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetName("Smith")
	if cmds := h.settle(299 * time.Millisecond); len(cmds) != 0 {
		t.Fatal("request issued before 300ms")
	}
	if !h.c.NamePending() {
		t.Error("name should still be pending")
	}
	cmds := h.settle(time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected one dispatch at 300ms, got %d", len(cmds))
	}
	res := h.run(cmds[0])
	if res.Intent != query.Filter("Smith", "") {
		t.Errorf("intent = %s, want filter(Smith)", res.Intent)
	}
}

func TestLaterDispatchWinsOutOfOrder(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetName("Jo")
	first := h.settle(300 * time.Millisecond)
	h.c.SetName("John")
	second := h.settle(300 * time.Millisecond)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one dispatch each, got %d and %d", len(first), len(second))
	}

	late := h.run(second[0])
	early := h.run(first[0])
	h.c.Update(late)
	h.c.Update(early)

	s := h.c.State()
	if len(s.Results) != 1 || s.Results[0].ID != "filter(John,)" {
		t.Errorf("results = %+v, want the John filter", s.Results)
	}
	if s.Loading {
		t.Error("Loading should be false after the current result")
	}
}

func TestStaleResultDoesNotClearLoading(t *testing.T) {
	h := newHarness(t)
	h.mount()

	cmdA := h.c.SetSortKey(patient.SortName)
	cmdB := h.c.SetSortKey(patient.SortDateOfBirth)
	h.c.Update(h.run(cmdA))

	if !h.c.State().Loading {
		t.Error("a stale result must not end the current request")
	}
	h.c.Update(h.run(cmdB))
	if h.c.State().Loading {
		t.Error("current result should end loading")
	}
}

func TestFilterBeatsSort(t *testing.T) {
	h := newHarness(t)
	h.mount()

	if cmd := h.c.SetSortKey(patient.SortName); cmd == nil {
		t.Fatal("sort change should dispatch")
	} else {
		h.c.Update(h.run(cmd))
	}

	h.c.SetName("Jane")
	cmds := h.settle(300 * time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected filter dispatch, got %d", len(cmds))
	}
	res := h.run(cmds[0])
	if res.Intent != query.Filter("Jane", "") {
		t.Errorf("intent = %s, want filter(Jane)", res.Intent)
	}
	h.c.Update(res)

	// Changing the sort while a filter is active resolves to the same filter.
	if cmd := h.c.SetSortKey(patient.SortDateOfBirth); cmd != nil {
		t.Error("sort change during an active filter should not dispatch")
	}
}

func TestClearingFilterFallsBackToSortThenList(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.Update(h.run(h.c.SetSortKey(patient.SortName)))
	h.c.SetName("Jane")
	for _, cmd := range h.settle(300 * time.Millisecond) {
		h.c.Update(h.run(cmd))
	}

	h.c.SetName("")
	cmds := h.settle(300 * time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected fallback dispatch, got %d", len(cmds))
	}
	if res := h.run(cmds[0]); res.Intent != query.Sort(patient.SortName) {
		t.Errorf("intent = %s, want sort(name)", res.Intent)
	}

	cmd := h.c.SetSortKey(patient.SortNone)
	if res := h.run(cmd); res.Intent != query.ListAll() {
		t.Errorf("intent = %s, want list", res.Intent)
	}
}

func TestDateFiltersImmediately(t *testing.T) {
	h := newHarness(t)
	h.mount()

	if cmd := h.c.SetDateOfBirth("1990-"); cmd != nil {
		t.Error("partial date should not dispatch")
	}
	cmd := h.c.SetDateOfBirth("1990-01-01")
	if res := h.run(cmd); res.Intent != query.Filter("", "1990-01-01") {
		t.Errorf("intent = %s", res.Intent)
	}
}

func TestFailureKeepsResultsAndSetsMessage(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.api.answer = func(string) ([]patient.Record, error) {
		return nil, &api.Error{Kind: api.ServerError, Status: 500, Err: errors.New("boom")}
	}
	h.c.Update(h.run(h.c.SetSortKey(patient.SortName)))

	s := h.c.State()
	if s.LastError != dispatch.MsgSortFailed {
		t.Errorf("LastError = %q, want %q", s.LastError, dispatch.MsgSortFailed)
	}
	if len(s.Results) != 1 || s.Results[0].ID != "list" {
		t.Errorf("results should be kept on failure, got %+v", s.Results)
	}

	h.api.answer = nil
	cmd := h.c.SetSortKey(patient.SortDateOfBirth)
	if h.c.State().LastError != "" {
		t.Error("LastError should clear when a new request starts")
	}
	h.c.Update(h.run(cmd))
}

func TestFailedLookupClearsResults(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.api.answer = func(call string) ([]patient.Record, error) {
		if strings.HasPrefix(call, "get(") {
			return nil, &api.Error{Kind: api.NotFound, Status: 404, Err: errors.New("not found")}
		}
		return []patient.Record{{ID: "x"}}, nil
	}
	h.c.SetID("  missing-id ")
	h.c.Update(h.run(h.c.Lookup()))

	v := h.c.View()
	if len(v.Results) != 0 {
		t.Errorf("results = %+v, want empty", v.Results)
	}
	if v.LastError != "Patient not found." {
		t.Errorf("LastError = %q", v.LastError)
	}
	if h.api.calls[0] != "get(missing-id)" {
		t.Errorf("lookup id not trimmed: %v", h.api.calls)
	}
	if !v.ShowEmpty() || v.EmptyMessage() != MsgNoMatches {
		t.Errorf("empty state should show next to the error, got ShowEmpty=%v %q", v.ShowEmpty(), v.EmptyMessage())
	}
}

// failCalls makes every call with one of the given prefixes fail.
func failCalls(prefixes ...string) func(string) ([]patient.Record, error) {
	return func(call string) ([]patient.Record, error) {
		for _, p := range prefixes {
			if strings.HasPrefix(call, p) {
				return nil, &api.Error{Kind: api.ServerError, Status: 500, Err: errors.New("boom")}
			}
		}
		return []patient.Record{{ID: call}}, nil
	}
}

func TestStaleFailureDoesNotSetError(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.api.answer = failCalls("sort(")

	cmdSort := h.c.SetSortKey(patient.SortName)
	cmdDate := h.c.SetDateOfBirth("2000-01-01")
	h.c.Update(h.run(cmdDate))
	h.c.Update(h.run(cmdSort))

	s := h.c.State()
	if s.LastError != "" {
		t.Errorf("LastError = %q, a superseded failure must be dropped", s.LastError)
	}
	if s.Loading {
		t.Error("Loading should be false after the current result")
	}
	if len(s.Results) != 1 || s.Results[0].ID != "filter(,2000-01-01)" {
		t.Errorf("results = %+v, want the date filter", s.Results)
	}
}

func TestStaleFailedLookupKeepsResults(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.api.answer = failCalls("get(")

	h.c.SetID("gone")
	cmdLookup := h.c.Lookup()
	h.c.SetName("Jane")
	cmds := h.settle(300 * time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected the name to dispatch after a lookup, got %d", len(cmds))
	}
	h.c.Update(h.run(cmds[0]))
	h.c.Update(h.run(cmdLookup))

	s := h.c.State()
	if len(s.Results) != 1 || s.Results[0].ID != "filter(Jane,)" {
		t.Errorf("results = %+v, a stale failed lookup must not clear them", s.Results)
	}
	if s.LastError != "" {
		t.Errorf("LastError = %q, want empty", s.LastError)
	}
}

func TestLookupSupersedesInFlightFilter(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetName("Jane")
	cmds := h.settle(300 * time.Millisecond)
	if len(cmds) != 1 {
		t.Fatalf("expected filter dispatch, got %d", len(cmds))
	}
	h.c.SetID("p-1")
	cmdLookup := h.c.Lookup()

	h.c.Update(h.run(cmdLookup))
	h.c.Update(h.run(cmds[0]))

	s := h.c.State()
	if len(s.Results) != 1 || s.Results[0].ID != "get(p-1)" {
		t.Errorf("results = %+v, want the lookup", s.Results)
	}
	if s.Loading {
		t.Error("Loading should be false")
	}
}

func TestLookupIsNotRetriggeredByOtherInputs(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetID("p-1")
	h.c.Update(h.run(h.c.Lookup()))
	h.api.calls = nil

	res := h.run(h.c.SetSortKey(patient.SortName))
	if res.Intent != query.Sort(patient.SortName) {
		t.Errorf("intent = %s, want sort(name)", res.Intent)
	}
	h.c.Update(res)

	h.c.SetName("Jo")
	for _, cmd := range h.settle(300 * time.Millisecond) {
		h.c.Update(h.run(cmd))
	}
	if cmd := h.c.SetDateOfBirth("1990-01-01"); cmd != nil {
		h.c.Update(h.run(cmd))
	}

	for _, call := range h.api.calls {
		if strings.HasPrefix(call, "get(") {
			t.Errorf("lookup re-issued: %v", h.api.calls)
		}
	}
	if len(h.api.calls) != 3 {
		t.Errorf("calls = %v, want sort, name filter, date filter", h.api.calls)
	}
}

func TestLookupSuccessAndBlank(t *testing.T) {
	h := newHarness(t)
	h.mount()

	if cmd := h.c.Lookup(); cmd != nil {
		t.Error("blank id should not dispatch")
	}

	h.c.SetName("Jane")
	h.c.SetID("p-1")
	h.c.Update(h.run(h.c.Lookup()))

	s := h.c.State()
	if len(s.Results) != 1 || s.Results[0].ID != "get(p-1)" {
		t.Errorf("results = %+v", s.Results)
	}
	if s.NameInput != "Jane" {
		t.Error("lookup must not touch other inputs")
	}
}

func TestClearAllSupersedesAndLaterFilterWins(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetName("Ann")
	cmdFilter := h.settle(300 * time.Millisecond)[0]
	h.c.SetName("Annabel")
	cmdReset := h.c.ClearAll()

	if cmds := h.settle(300 * time.Millisecond); len(cmds) != 0 {
		t.Fatal("pending name must not propagate after ClearAll")
	}
	s := h.c.State()
	if s.NameInput != "" || s.DebouncedName != "" || s.DOBInput != "" || s.SortKey != patient.SortNone || s.IDInput != "" {
		t.Errorf("inputs not reset: %+v", s)
	}

	h.c.SetName("Bob")
	cmdBob := h.settle(300 * time.Millisecond)[0]

	h.c.Update(h.run(cmdBob))
	h.c.Update(h.run(cmdReset))
	h.c.Update(h.run(cmdFilter))

	got := h.c.State().Results
	if len(got) != 1 || got[0].ID != "filter(Bob,)" {
		t.Errorf("results = %+v, want the Bob filter", got)
	}
}

func TestClearAllAlwaysDispatchesListAll(t *testing.T) {
	h := newHarness(t)
	h.mount()

	res := h.run(h.c.ClearAll())
	if res.Intent != query.ListAll() {
		t.Errorf("intent = %s, want list", res.Intent)
	}
}

func TestCloseMakesEverythingInert(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.c.SetName("Smith")
	inflight := h.c.SetSortKey(patient.SortName)
	h.c.Close()

	if cmds := h.settle(time.Second); len(cmds) != 0 {
		t.Error("tick after Close should not dispatch")
	}
	before := h.c.State()
	h.c.Update(h.run(inflight))
	if after := h.c.State(); after.Results[0].ID != before.Results[0].ID {
		t.Error("result after Close should be ignored")
	}
	if h.c.Init() != nil || h.c.ClearAll() != nil || h.c.SetDateOfBirth("1990-01-01") != nil {
		t.Error("mutators after Close should return nil")
	}
	h.c.Close()
}

func TestEmptyMessages(t *testing.T) {
	h := newHarness(t)
	h.api.answer = func(string) ([]patient.Record, error) { return []patient.Record{}, nil }
	h.mount()

	v := h.c.View()
	if !v.ShowEmpty() || v.EmptyMessage() != MsgNoPatients {
		t.Errorf("view = %+v, message %q", v, v.EmptyMessage())
	}

	h.c.SetID("abc")
	if got := h.c.View().EmptyMessage(); got != MsgNoMatches {
		t.Errorf("EmptyMessage() = %q, want %q", got, MsgNoMatches)
	}

	h.c.SetID("")
	h.c.SetName("x")
	if !h.c.View().HasActiveFilters {
		t.Error("raw name input should count as an active filter before debounce")
	}
}

func TestWhitespaceInputCountsAsActive(t *testing.T) {
	h := newHarness(t)
	h.api.answer = func(string) ([]patient.Record, error) { return []patient.Record{}, nil }
	h.mount()

	h.c.SetName("   ")
	if cmds := h.settle(300 * time.Millisecond); len(cmds) != 0 {
		t.Error("a blank name resolves to the listing already shown")
	}
	v := h.c.View()
	if !v.HasActiveFilters || v.EmptyMessage() != MsgNoMatches {
		t.Errorf("HasActiveFilters = %v, message %q", v.HasActiveFilters, v.EmptyMessage())
	}
}

func TestResolveExamples(t *testing.T) {
	if got := query.Resolve("Jane", "", patient.SortName); got != query.Filter("Jane", "") {
		t.Errorf("Resolve(Jane, '', name) = %s", got)
	}
	if got := query.Resolve("", "", patient.SortNone); got != query.ListAll() {
		t.Errorf("Resolve('', '', '') = %s", got)
	}
}

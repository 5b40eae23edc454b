package debounce

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
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

// advance moves time forward and returns messages of timers that came due.
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

func settleAll(d *Debouncer[string], msgs []tea.Msg) int {
	changed := 0
	for _, m := range msgs {
		if s, ok := m.(Settled[string]); ok && d.Settle(s) {
			changed++
		}
	}
	return changed
}

func TestDebouncerPropagatesAfterDelay(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 300*time.Millisecond, "", WithTick[string](clock.tick))

	if cmd := d.Set("Smith"); cmd == nil {
		t.Fatal("Set should return a tick command")
	}
	if !d.Pending() {
		t.Error("expected pending after Set")
	}

	if n := settleAll(d, clock.advance(299*time.Millisecond)); n != 0 {
		t.Errorf("value should not propagate before delay, got %d changes", n)
	}
	if d.Value() != "" {
		t.Errorf("derived value changed early: %q", d.Value())
	}

	if n := settleAll(d, clock.advance(time.Millisecond)); n != 1 {
		t.Fatalf("expected 1 change at delay, got %d", n)
	}
	if d.Value() != "Smith" {
		t.Errorf("expected Smith, got %q", d.Value())
	}
	if d.Pending() {
		t.Error("should not be pending after settle")
	}
}

func TestDebouncerRestartsOnEachUpdate(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 300*time.Millisecond, "", WithTick[string](clock.tick))

	changes := 0
	for _, v := range []string{"S", "Sm", "Smi", "Smit", "Smith"} {
		d.Set(v)
		changes += settleAll(d, clock.advance(100*time.Millisecond))
	}
	if changes != 0 {
		t.Fatalf("intermediate values propagated: %d changes", changes)
	}

	changes += settleAll(d, clock.advance(300*time.Millisecond))
	if changes != 1 {
		t.Errorf("expected exactly 1 change, got %d", changes)
	}
	if d.Value() != "Smith" {
		t.Errorf("expected final value Smith, got %q", d.Value())
	}
}

func TestDebouncerSameValueIsNotAChange(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 0, "Jane", WithTick[string](clock.tick))
	if d.Delay() != DefaultDelay {
		t.Errorf("expected default delay, got %v", d.Delay())
	}

	d.Set("Jan")
	d.Set("Jane")
	if n := settleAll(d, clock.advance(DefaultDelay)); n != 0 {
		t.Errorf("settling back to the same value should not report a change, got %d", n)
	}
}

func TestDebouncerCancelDropsPending(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 300*time.Millisecond, "", WithTick[string](clock.tick))

	d.Set("Jane")
	d.Cancel()
	if n := settleAll(d, clock.advance(time.Second)); n != 0 {
		t.Errorf("cancelled tick propagated")
	}
	if d.Value() != "" {
		t.Errorf("expected empty value, got %q", d.Value())
	}
}

func TestDebouncerResetSetsValueImmediately(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 300*time.Millisecond, "Jane", WithTick[string](clock.tick))

	d.Set("Janet")
	d.Reset("")
	if d.Value() != "" {
		t.Errorf("expected reset value, got %q", d.Value())
	}
	if n := settleAll(d, clock.advance(time.Second)); n != 0 {
		t.Error("tick scheduled before Reset should be ignored")
	}
}

func TestDebouncerCloseMakesTicksInert(t *testing.T) {
	clock := &fakeClock{}
	d := New("name", 300*time.Millisecond, "", WithTick[string](clock.tick))

	d.Set("Jane")
	d.Close()
	if n := settleAll(d, clock.advance(time.Second)); n != 0 {
		t.Error("tick fired after Close")
	}
	if cmd := d.Set("again"); cmd != nil {
		t.Error("Set after Close should return nil")
	}
}

func TestDebouncerIgnoresForeignKey(t *testing.T) {
	d := New("name", 300*time.Millisecond, "")
	d.Set("x")
	if d.Settle(Settled[string]{Key: "other", Version: 1, Value: "x"}) {
		t.Error("settled message for another key should be ignored")
	}
	if !d.Settle(Settled[string]{Key: "name", Version: 1, Value: "x"}) {
		t.Error("matching settled message should apply")
	}
}

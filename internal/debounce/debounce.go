// Package debounce delays propagation of a rapidly changing input until it
// has been stable for a configured interval.
//
// The debouncer runs on the Bubble Tea update loop: Set returns a tick
// command, and the resulting Settled message must be handed back through
// Settle. A version counter makes every tick except the newest one inert, so
// restarting the wait is just a matter of bumping the version.
package debounce

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultDelay is the delay used for free-text inputs.
const DefaultDelay = 300 * time.Millisecond

// TickFunc schedules fn to run after d. tea.Tick is the production value.
type TickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Settled is emitted when a debounce interval elapses.
// It only takes effect if Version still matches the debouncer.
type Settled[T comparable] struct {
	Key     string
	Version uint64
	Value   T
}

// Debouncer holds a raw value and its lagged, derived view.
// Not goroutine-safe: use it from a single update loop.
type Debouncer[T comparable] struct {
	key     string
	delay   time.Duration
	tick    TickFunc
	version uint64
	pending bool
	closed  bool
	value   T
}

// Option configures a Debouncer.
type Option[T comparable] func(*Debouncer[T])

// WithTick replaces the scheduler (tests use a fake clock).
func WithTick[T comparable](tick TickFunc) Option[T] {
	return func(d *Debouncer[T]) {
		if tick != nil {
			d.tick = tick
		}
	}
}

// New creates a debouncer whose derived value starts at initial.
// A non-positive delay falls back to DefaultDelay.
func New[T comparable](key string, delay time.Duration, initial T, opts ...Option[T]) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	d := &Debouncer[T]{
		key:   key,
		delay: delay,
		tick:  tea.Tick,
		value: initial,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Set records a new raw value and restarts the wait.
// Returns nil once the debouncer is closed.
func (d *Debouncer[T]) Set(v T) tea.Cmd {
	if d.closed {
		return nil
	}
	d.version++
	d.pending = true
	msg := Settled[T]{Key: d.key, Version: d.version, Value: v}
	return d.tick(d.delay, func(time.Time) tea.Msg {
		return msg
	})
}

// Settle applies msg if it belongs to this debouncer and is the newest tick.
// Reports whether the derived value changed.
func (d *Debouncer[T]) Settle(msg Settled[T]) bool {
	if d.closed || msg.Key != d.key || msg.Version != d.version || !d.pending {
		return false
	}
	d.pending = false
	if msg.Value == d.value {
		return false
	}
	d.value = msg.Value
	return true
}

// Cancel drops any pending propagation. The derived value is unchanged.
func (d *Debouncer[T]) Cancel() {
	d.version++
	d.pending = false
}

// Reset cancels pending propagation and sets the derived value immediately.
func (d *Debouncer[T]) Reset(v T) {
	d.Cancel()
	d.value = v
}

// Close cancels for good. Ticks already in flight become no-ops.
func (d *Debouncer[T]) Close() {
	d.Cancel()
	d.closed = true
}

// Value returns the derived (debounced) value.
func (d *Debouncer[T]) Value() T { return d.value }

// Pending reports whether a propagation is scheduled.
func (d *Debouncer[T]) Pending() bool { return d.pending }

// Key identifies the input this debouncer serves.
func (d *Debouncer[T]) Key() string { return d.key }

// Delay returns the configured quiet interval.
func (d *Debouncer[T]) Delay() time.Duration { return d.delay }

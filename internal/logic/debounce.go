package logic

import "time"

// LevelDebouncer tracks a sampled level and reports a value only once it has
// held steady for the settle window.
//
// The first steady value establishes the baseline. After that a differing
// sample starts a pending transition which completes once the same value has
// been seen continuously for the window; flapping back to the stable value
// cancels it.
type LevelDebouncer[T comparable] struct {
	window time.Duration

	stable    T
	baselined bool

	pending      T
	hasPending   bool
	pendingSince time.Time
}

// NewLevelDebouncer creates a debouncer with the given settle window.
func NewLevelDebouncer[T comparable](window time.Duration) *LevelDebouncer[T] {
	if window < 0 {
		window = 0
	}
	return &LevelDebouncer[T]{window: window}
}

// Process feeds a sample observed at now. It returns the new stable value and
// true when this sample establishes the baseline or completes a transition.
func (d *LevelDebouncer[T]) Process(v T, now time.Time) (T, bool) {
	if d.baselined && v == d.stable {
		// Back at the stable value, drop any pending transition
		d.hasPending = false
		return d.stable, false
	}

	if !d.hasPending || d.pending != v {
		d.pending = v
		d.pendingSince = now
		d.hasPending = true
	}

	if now.Sub(d.pendingSince) < d.window {
		return d.stable, false
	}

	d.stable = v
	d.baselined = true
	d.hasPending = false
	return d.stable, true
}

// Deadline returns when the pending transition settles, if one is pending.
func (d *LevelDebouncer[T]) Deadline() (time.Time, bool) {
	if !d.hasPending {
		return time.Time{}, false
	}
	return d.pendingSince.Add(d.window), true
}

// Pending returns the value of the pending transition, if any.
func (d *LevelDebouncer[T]) Pending() (T, bool) {
	return d.pending, d.hasPending
}

// Stable returns the current stable value.
func (d *LevelDebouncer[T]) Stable() T {
	return d.stable
}

// IsBaselined reports whether a stable value has been established.
func (d *LevelDebouncer[T]) IsBaselined() bool {
	return d.baselined
}

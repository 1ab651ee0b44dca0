// Package scheduler runs timed callbacks from a single cooperative loop.
//
// All callbacks run on the goroutine that calls Tick. Nothing here blocks:
// a tick is one bounded sweep over the task table.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrReentrantTick is returned when Tick is called from inside a callback.
var ErrReentrantTick = errors.New("scheduler: tick called from inside a callback")

// Task is a registered callback. Recurring tasks live until cancelled;
// one-shot tasks are dropped after they fire.
type Task struct {
	loop *Loop
	id   uint64
	fn   func()

	interval  time.Duration
	next      time.Time
	recurring bool
	everyTick bool

	cancelled  bool
	cancelPass uint64
}

// Cancel removes the task. Safe to call from inside any callback, including
// the task's own; the current pass is unaffected.
func (t *Task) Cancel() {
	t.loop.Cancel(t)
}

// Next returns the time the task is next due.
func (t *Task) Next() time.Time {
	return t.next
}

// Interval returns the repeat interval, or zero for one-shot and per-tick tasks.
func (t *Task) Interval() time.Duration {
	return t.interval
}

// Active reports whether the task is still scheduled.
func (t *Task) Active() bool {
	return !t.cancelled
}

// Loop owns every scheduled task. It is not safe for concurrent use;
// hand values over from other goroutines through sensor.EdgeSensor or
// similar lock-free slots and pick them up from an OnTick task.
type Loop struct {
	clock func() time.Time

	tasks   []*Task
	nextID  uint64
	pass    uint64
	ticking bool
	current time.Time

	panics uint64
}

// New creates a Loop. clock is used to anchor tasks registered outside a tick;
// tasks registered during a tick are anchored to the tick time.
func New(clock func() time.Time) *Loop {
	if clock == nil {
		clock = time.Now
	}
	return &Loop{clock: clock}
}

// Now returns the time of the tick in progress, or the clock time between ticks.
func (l *Loop) Now() time.Time {
	if l.ticking {
		return l.current
	}
	return l.clock()
}

// OnRepeat registers fn to run every interval, first at Now()+interval.
// A non-positive interval runs fn on every tick.
func (l *Loop) OnRepeat(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		return l.OnTick(fn)
	}
	return l.add(&Task{fn: fn, interval: interval, next: l.Now().Add(interval), recurring: true})
}

// OnDelay registers fn to run once, delay after Now().
func (l *Loop) OnDelay(delay time.Duration, fn func()) *Task {
	return l.At(l.Now().Add(delay), fn)
}

// At registers fn to run once at the first tick at or after t.
func (l *Loop) At(t time.Time, fn func()) *Task {
	return l.add(&Task{fn: fn, next: t})
}

// OnTick registers fn to run on every tick.
func (l *Loop) OnTick(fn func()) *Task {
	return l.add(&Task{fn: fn, recurring: true, everyTick: true})
}

func (l *Loop) add(t *Task) *Task {
	l.nextID++
	t.loop = l
	t.id = l.nextID
	// Appending never disturbs the indexes of an in-progress pass
	l.tasks = append(l.tasks, t)
	return t
}

// Cancel removes a task starting with the next tick.
func (l *Loop) Cancel(t *Task) {
	if t == nil || t.cancelled {
		return
	}
	t.cancelled = true
	t.cancelPass = l.pass
}

// Tick fires every task due at now, in registration order, exactly once.
// Tasks registered by callbacks during the pass are first considered on the
// next tick.
func (l *Loop) Tick(now time.Time) error {
	if l.ticking {
		return ErrReentrantTick
	}
	l.ticking = true
	l.pass++
	l.current = now
	defer func() { l.ticking = false }()

	n := len(l.tasks)
	for i := 0; i < n; i++ {
		t := l.tasks[i]
		if t.cancelled && t.cancelPass < l.pass {
			continue
		}
		if !t.everyTick && t.next.After(now) {
			continue
		}

		l.fire(t)

		switch {
		case t.everyTick:
			t.next = now
		case t.recurring:
			t.next = advance(t.next, t.interval, now)
		default:
			if !t.cancelled {
				t.cancelled = true
				t.cancelPass = l.pass
			}
		}
	}

	l.compact()
	return nil
}

func (l *Loop) fire(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			l.panics++
			log.Printf("sched: task %d panicked: %v", t.id, r)
		}
	}()
	t.fn()
}

// advance moves next forward by interval. Whole intervals missed because of a
// late tick are skipped without shifting the phase.
func advance(next time.Time, interval time.Duration, now time.Time) time.Time {
	next = next.Add(interval)
	if !next.After(now) {
		missed := now.Sub(next)/interval + 1
		next = next.Add(missed * interval)
	}
	return next
}

func (l *Loop) compact() {
	kept := l.tasks[:0]
	for _, t := range l.tasks {
		if !t.cancelled {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(l.tasks); i++ {
		l.tasks[i] = nil
	}
	l.tasks = kept
}

// Len returns the number of scheduled tasks.
func (l *Loop) Len() int {
	n := 0
	for _, t := range l.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Panics returns how many callbacks have panicked and been recovered.
func (l *Loop) Panics() uint64 {
	return l.panics
}

// Run ticks the loop on every value from ticks until ctx is done.
// The tick value is ignored in favour of now() so tests can drive both.
func (l *Loop) Run(ctx context.Context, ticks <-chan time.Time, now func() time.Time) error {
	if now == nil {
		now = l.clock
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := l.Tick(now()); err != nil {
				log.Printf("sched: %v", err)
			}
		}
	}
}

// Package sensor provides the producers that originate pipeline values:
// periodic polls, change-only polls, edge-triggered levels and edge counters.
package sensor

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/sk-sensor/internal/flow"
	"github.com/sweeney/sk-sensor/internal/logic"
	"github.com/sweeney/sk-sensor/internal/scheduler"
)

// RepeatSensor calls read every interval and always emits the result.
type RepeatSensor[T any] struct {
	flow.Producer[T]
	read func() T
	task *scheduler.Task
}

// NewRepeatSensor registers a periodic poll on loop.
func NewRepeatSensor[T any](loop *scheduler.Loop, interval time.Duration, read func() T) *RepeatSensor[T] {
	s := &RepeatSensor[T]{read: read}
	s.task = loop.OnRepeat(interval, s.update)
	return s
}

func (s *RepeatSensor[T]) update() {
	s.Emit(s.read())
}

// Stop cancels the poll starting with the next tick.
func (s *RepeatSensor[T]) Stop() {
	s.task.Cancel()
}

// ChangeSensor calls read every interval and emits only when the value
// differs from the last emitted one. Comparison is exact equality.
type ChangeSensor[T comparable] struct {
	flow.Producer[T]
	read func() T
	task *scheduler.Task
}

// NewChangeSensor registers a change-only poll on loop.
func NewChangeSensor[T comparable](loop *scheduler.Loop, interval time.Duration, read func() T) *ChangeSensor[T] {
	s := &ChangeSensor[T]{read: read}
	s.task = loop.OnRepeat(interval, s.update)
	return s
}

func (s *ChangeSensor[T]) update() {
	v := s.read()
	if last, ok := s.Value(); ok && last == v {
		return
	}
	s.Emit(v)
}

// Stop cancels the poll starting with the next tick.
func (s *ChangeSensor[T]) Stop() {
	s.task.Cancel()
}

// EdgeSensor republishes a level reported from the hardware event path.
//
// OnEvent may be called from any goroutine. It only stores the value in a
// one-slot mailbox; the loop picks it up on its next tick and emits it if it
// differs from the last emitted level. A burst of events between ticks
// collapses to the latest one.
type EdgeSensor[T comparable] struct {
	flow.Producer[T]
	pending   atomic.Pointer[T]
	collapsed atomic.Uint64
	task      *scheduler.Task
}

// NewEdgeSensor registers the mailbox drain on loop.
func NewEdgeSensor[T comparable](loop *scheduler.Loop) *EdgeSensor[T] {
	s := &EdgeSensor[T]{}
	s.task = loop.OnTick(s.drain)
	return s
}

// OnEvent hands a new level over to the loop. It never blocks.
func (s *EdgeSensor[T]) OnEvent(v T) {
	if old := s.pending.Swap(&v); old != nil {
		s.collapsed.Add(1)
	}
}

func (s *EdgeSensor[T]) drain() {
	p := s.pending.Swap(nil)
	if p == nil {
		return
	}
	if last, ok := s.Value(); ok && last == *p {
		return
	}
	s.Emit(*p)
}

// Collapsed returns how many events were overwritten before the loop saw them.
func (s *EdgeSensor[T]) Collapsed() uint64 {
	return s.collapsed.Load()
}

// Stop cancels the drain starting with the next tick.
func (s *EdgeSensor[T]) Stop() {
	s.task.Cancel()
}

// CounterSensor reads and resets an EdgeCounter every interval and emits the
// count. Counts are never collapsed: every accepted edge is in exactly one
// emitted Count.
type CounterSensor struct {
	flow.Producer[logic.Count]
	loop    *scheduler.Loop
	counter *logic.EdgeCounter
	task    *scheduler.Task
}

// NewCounterSensor registers the periodic read of counter on loop.
func NewCounterSensor(loop *scheduler.Loop, counter *logic.EdgeCounter, interval time.Duration) *CounterSensor {
	s := &CounterSensor{loop: loop, counter: counter}
	s.task = loop.OnRepeat(interval, s.update)
	return s
}

// OnEdge feeds the hardware event path straight into the counter.
func (s *CounterSensor) OnEdge(edge logic.Edge, ts time.Duration) {
	s.counter.OnEdge(edge, ts)
}

func (s *CounterSensor) update() {
	now := s.loop.Now()
	n, elapsed := s.counter.ReadAndReset(now)
	s.Emit(logic.Count{N: n, Elapsed: elapsed, At: now})
}

// Counter returns the underlying counter.
func (s *CounterSensor) Counter() *logic.EdgeCounter {
	return s.counter
}

// Stop cancels the periodic read starting with the next tick.
func (s *CounterSensor) Stop() {
	s.task.Cancel()
}

// Fallible adapts a read that can fail into one that cannot. Failures are
// logged and reported downstream as fallback; no plausibility check is made
// on successful reads.
func Fallible[T any](name string, read func() (T, error), fallback T) func() T {
	return func() T {
		v, err := read()
		if err != nil {
			log.Printf("sensor: %s read error: %v", name, err)
			return fallback
		}
		return v
	}
}

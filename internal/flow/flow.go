// Package flow connects value producers to consumers.
//
// A node exposes Source[T] when it emits values and Sink[T] when it accepts
// them; transforms are both. Propagation is synchronous and depth-first: when
// Emit returns, every downstream stage has seen the value. Nodes are owned by
// the cooperative loop and are not safe for concurrent use.
package flow

import "log"

// Sink accepts values from upstream.
type Sink[T any] interface {
	Set(v T)
}

// Source emits values to connected sinks.
type Source[T any] interface {
	Connect(s Sink[T]) *Subscription
}

// Stage is a node that is both a sink for In and a source of Out.
type Stage[In, Out any] interface {
	Sink[In]
	Source[Out]
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc[T any] func(T)

// Set calls f(v).
func (f SinkFunc[T]) Set(v T) { f(v) }

// Consumer wraps fn as a terminal sink.
func Consumer[T any](fn func(T)) Sink[T] {
	return SinkFunc[T](fn)
}

// Connect subscribes every sink to src, in order, and returns src so more
// sinks can be attached to the same node.
func Connect[T any](src Source[T], sinks ...Sink[T]) Source[T] {
	for _, s := range sinks {
		src.Connect(s)
	}
	return src
}

// Pipe subscribes stage to src and returns stage as the new tail of a
// linear chain.
func Pipe[T, U any](src Source[T], stage Stage[T, U]) Source[U] {
	src.Connect(stage)
	return stage
}

// Subscription is the edge between a producer and one sink.
type Subscription struct {
	cancel func()
	done   bool
}

// Disconnect removes the sink from its producer. An emission already in
// progress still reaches it; later emissions do not. Safe to call more than
// once and from inside the sink itself.
func (s *Subscription) Disconnect() {
	if s == nil || s.done {
		return
	}
	s.done = true
	s.cancel()
}

// Connected reports whether the subscription is still live.
func (s *Subscription) Connected() bool {
	return s != nil && !s.done
}

type subscriber[T any] struct {
	sink Sink[T]
	sub  *Subscription
}

// Producer is the emitting half of a node. Embed it to get Connect and Emit.
// The zero value is ready to use.
type Producer[T any] struct {
	name string
	subs []*subscriber[T]

	last    T
	hasLast bool

	failures uint64
}

// SetName labels the producer in log output.
func (p *Producer[T]) SetName(name string) {
	p.name = name
}

// Name returns the producer label.
func (p *Producer[T]) Name() string {
	if p.name == "" {
		return "producer"
	}
	return p.name
}

// Connect appends s to the subscriber list. Notification order is
// subscription order.
func (p *Producer[T]) Connect(s Sink[T]) *Subscription {
	entry := &subscriber[T]{sink: s}
	entry.sub = &Subscription{cancel: func() { p.remove(entry) }}
	// Copy on write so a snapshot held by an in-flight Emit stays intact
	subs := make([]*subscriber[T], len(p.subs), len(p.subs)+1)
	copy(subs, p.subs)
	p.subs = append(subs, entry)
	return entry.sub
}

func (p *Producer[T]) remove(entry *subscriber[T]) {
	subs := make([]*subscriber[T], 0, len(p.subs))
	for _, s := range p.subs {
		if s != entry {
			subs = append(subs, s)
		}
	}
	p.subs = subs
}

// Emit records v as the latest value and delivers it to every subscriber.
// A subscriber that panics is logged and skipped; the rest still run.
func (p *Producer[T]) Emit(v T) {
	p.last = v
	p.hasLast = true
	for i, s := range p.subs {
		p.deliver(i, s.sink, v)
	}
}

func (p *Producer[T]) deliver(i int, s Sink[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			p.failures++
			log.Printf("flow: %s: subscriber %d panicked: %v", p.Name(), i, r)
		}
	}()
	s.Set(v)
}

// Value returns the last emitted value and whether anything was emitted yet.
func (p *Producer[T]) Value() (T, bool) {
	return p.last, p.hasLast
}

// Subscribers returns the number of connected sinks.
func (p *Producer[T]) Subscribers() int {
	return len(p.subs)
}

// Failures returns how many subscriber invocations panicked.
func (p *Producer[T]) Failures() uint64 {
	return p.failures
}

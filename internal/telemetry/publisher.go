package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by Async.Publish when the queue is full and the
// value was dropped.
var ErrQueueFull = errors.New("telemetry: publish queue full")

// Publisher delivers a value for a dot-delimited path (for example
// "environment.temperature"). Publish is called from the cooperative loop and
// must return quickly; wrap slow transports in Async.
type Publisher interface {
	Publish(path string, v Value) error
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(path string, v Value) error

// Publish calls f(path, v).
func (f PublisherFunc) Publish(path string, v Value) error { return f(path, v) }

// Multi publishes to every publisher in order. One failing publisher does not
// stop the others; their errors are joined.
type Multi []Publisher

// Publish fans v out.
func (m Multi) Publish(path string, v Value) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(path, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type update struct {
	path string
	v    Value
}

// Async decouples the loop from a transport that may block. Publish does a
// non-blocking send into a bounded queue and drops the value when it is full;
// a background goroutine forwards queued values to the wrapped publisher.
type Async struct {
	name  string
	next  Publisher
	queue chan update
	drops atomic.Uint64
	wg    sync.WaitGroup
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(name string, next Publisher, size int) *Async {
	if size <= 0 {
		size = 64
	}
	return &Async{name: name, next: next, queue: make(chan update, size)}
}

// Start runs the forwarding goroutine until ctx is done. Values still queued
// at that point are flushed before it exits.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				a.flush()
				return
			case u := <-a.queue:
				a.forward(u)
			}
		}
	}()
}

func (a *Async) flush() {
	for {
		select {
		case u := <-a.queue:
			a.forward(u)
		default:
			return
		}
	}
}

func (a *Async) forward(u update) {
	if err := a.next.Publish(u.path, u.v); err != nil {
		log.Printf("telemetry: %s: publish %s: %v", a.name, u.path, err)
	}
}

// Publish queues v without blocking.
func (a *Async) Publish(path string, v Value) error {
	select {
	case a.queue <- update{path: path, v: v}:
		return nil
	default:
		if a.drops.Add(1) == 1 {
			log.Printf("telemetry: %s: queue full (%d), dropping", a.name, cap(a.queue))
		}
		return ErrQueueFull
	}
}

// Drops returns how many values were dropped because the queue was full.
func (a *Async) Drops() uint64 {
	return a.drops.Load()
}

// Wait blocks until the forwarding goroutine has exited.
func (a *Async) Wait() {
	a.wg.Wait()
}

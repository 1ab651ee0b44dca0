package mqtt

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// job is one queued publish: a telemetry value, or a system event when
// event is set. done is non-nil for events the caller waits on.
type job struct {
	path  string
	value telemetry.Value
	event *SystemEvent
	done  chan error
}

// Async runs a Publisher's broker I/O on its own goroutine. Publish and
// PublishSystem never wait on the broker unless the event has Wait set; when
// the queue is full the message is dropped and telemetry.ErrQueueFull
// returned.
type Async struct {
	next    Publisher
	queue   chan job
	stopped chan struct{}
	drops   atomic.Uint64
	wg      sync.WaitGroup
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = 64
	}
	return &Async{next: next, queue: make(chan job, size), stopped: make(chan struct{})}
}

// Start runs the publishing goroutine until ctx is done, then flushes what is
// still queued.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.stopped)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case j := <-a.queue:
						a.send(j)
					default:
						return
					}
				}
			case j := <-a.queue:
				a.send(j)
			}
		}
	}()
}

func (a *Async) send(j job) {
	var err error
	name := j.path
	if j.event != nil {
		name = j.event.Event
		err = a.next.PublishSystem(*j.event)
	} else {
		err = a.next.Publish(j.path, j.value)
	}
	if j.done != nil {
		j.done <- err
		return
	}
	if err != nil {
		log.Printf("mqtt: publish %s: %v", name, err)
	}
}

func (a *Async) offer(j job) error {
	select {
	case a.queue <- j:
		return nil
	default:
		if a.drops.Add(1) == 1 {
			log.Printf("mqtt: publish queue full (%d), dropping", cap(a.queue))
		}
		return telemetry.ErrQueueFull
	}
}

// Publish queues a telemetry value.
func (a *Async) Publish(path string, v telemetry.Value) error {
	return a.offer(job{path: path, value: v})
}

// PublishSystem queues a lifecycle event. An event with Wait set blocks until
// the publishing goroutine has sent it, so it lands after everything queued
// before it; once that goroutine has stopped it is sent directly.
func (a *Async) PublishSystem(event SystemEvent) error {
	if !event.Wait {
		return a.offer(job{event: &event})
	}

	j := job{event: &event, done: make(chan error, 1)}
	select {
	case a.queue <- j:
	case <-a.stopped:
		return a.next.PublishSystem(event)
	}
	select {
	case err := <-j.done:
		return err
	case <-a.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return a.next.PublishSystem(event)
		}
	}
}

// Drops returns how many messages were dropped because the queue was full.
func (a *Async) Drops() uint64 {
	return a.drops.Load()
}

// Wait blocks until the publishing goroutine has exited.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Close closes the wrapped publisher. Call it after Wait.
func (a *Async) Close() error {
	return a.next.Close()
}

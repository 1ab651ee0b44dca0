package mqtt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/sk-sensor/internal/scheduler"
	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// stalledClient reports an open connection but never completes a publish
// until released, like a TCP session that has stopped draining.
type stalledClient struct {
	release chan struct{}
	calls   atomic.Int32
}

func (c *stalledClient) IsConnectionOpen() bool { return true }
func (c *stalledClient) Publish(string, byte, bool, interface{}) paho.Token {
	c.calls.Add(1)
	<-c.release
	return &fakeToken{}
}
func (c *stalledClient) Disconnect(uint) {}

func TestAsyncStalledBrokerDoesNotBlockLoop(t *testing.T) {
	c := &stalledClient{release: make(chan struct{})}
	a := NewAsync(newPublisherWithClient(c, "boat", 8), 4)
	ctx, cancel := context.WithCancel(t.Context())
	a.Start(ctx)
	defer func() {
		close(c.release)
		cancel()
		a.Wait()
	}()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loop := scheduler.New(func() time.Time { return start })
	out := telemetry.NewOutput[float64](a, telemetry.Meta{Path: "sensors.main.flowrate"})
	loop.OnTick(func() { out.Set(1.5) })
	loop.OnRepeat(time.Second, func() {
		a.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
	})

	done := make(chan error, 1)
	go func() {
		for i := 1; i <= 20; i++ {
			if err := loop.Tick(start.Add(time.Duration(i) * time.Second)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Tick error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop.Tick did not return while the broker was stalled")
	}

	if c.calls.Load() == 0 {
		t.Error("expected the publishing goroutine to reach the client")
	}
	if a.Drops() == 0 {
		t.Error("expected messages to be dropped once the queue filled")
	}
}

func TestAsyncWaitEventFollowsQueuedTelemetry(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 8)
	ctx, cancel := context.WithCancel(t.Context())
	a.Start(ctx)

	if err := a.Publish("environment.temperature", telemetry.Float(21.5)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := a.PublishSystem(SystemEvent{Event: "SHUTDOWN", Wait: true}); err != nil {
		t.Fatalf("PublishSystem error: %v", err)
	}
	if len(fake.Messages) != 1 || len(fake.SystemEvents) != 1 {
		t.Fatalf("expected telemetry then SHUTDOWN, got %d messages %d events", len(fake.Messages), len(fake.SystemEvents))
	}

	cancel()
	a.Wait()

	// Once stopped, waiting events go straight through.
	fake.PublishSystemError = errors.New("rejected")
	if err := a.PublishSystem(SystemEvent{Event: "SHUTDOWN", Wait: true}); err == nil {
		t.Error("expected the publisher's error after the goroutine stopped")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !fake.Closed {
		t.Error("expected Close to reach the wrapped publisher")
	}
}

func TestAsyncHeartbeatDroppedWhenFull(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 1)

	if err := a.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("first heartbeat should queue, got %v", err)
	}
	if err := a.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); !errors.Is(err, telemetry.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if a.Drops() != 1 {
		t.Errorf("Drops = %d, want 1", a.Drops())
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	a.Start(ctx)
	a.Wait()
	if len(fake.SystemEvents) != 1 {
		t.Errorf("expected the queued heartbeat flushed on stop, got %d", len(fake.SystemEvents))
	}
}

package mqtt

import (
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// Message is a telemetry value recorded by FakePublisher.
type Message struct {
	Path  string
	Value telemetry.Value
}

// FakePublisher records published values for test assertions.
type FakePublisher struct {
	// Messages contains all telemetry values that were published.
	Messages []Message

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Now supplies payload timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the telemetry value.
func (f *FakePublisher) Publish(path string, v telemetry.Value) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	payload, err := FormatPayload(path, v, now())
	if err != nil {
		return err
	}
	f.Messages = append(f.Messages, Message{Path: path, Value: v})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// ValuesFor returns every value published under path, in order.
func (f *FakePublisher) ValuesFor(path string) []telemetry.Value {
	var out []telemetry.Value
	for _, m := range f.Messages {
		if m.Path == path {
			out = append(out, m.Value)
		}
	}
	return out
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.Messages = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

package mqtt

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/sk-sensor/internal/telemetry"
)

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"sk-sensor", "environment.temperature", "sk-sensor/environment/temperature"},
		{"sk-sensor", "sensors.main.flowrate", "sk-sensor/sensors/main/flowrate"},
		{"boat", "depth", "boat/depth"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.path); got != tt.want {
			t.Errorf("Topic(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
	if got := SystemTopic("sk-sensor"); got != "sk-sensor/system" {
		t.Errorf("SystemTopic = %q", got)
	}
}

func TestFormatPayload(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC)

	tests := []struct {
		name  string
		path  string
		value telemetry.Value
		want  string
	}{
		{
			name:  "float",
			path:  "environment.temperature",
			value: telemetry.Float(294.65),
			want:  `{"path":"environment.temperature","value":294.65,"timestamp":"2026-02-03T10:30:45Z"}`,
		},
		{
			name:  "bool",
			path:  "sensors.digital_input2.value",
			value: telemetry.Bool(true),
			want:  `{"path":"sensors.digital_input2.value","value":true,"timestamp":"2026-02-03T10:30:45Z"}`,
		},
		{
			name:  "int",
			path:  "sensors.count",
			value: telemetry.Int(42),
			want:  `{"path":"sensors.count","value":42,"timestamp":"2026-02-03T10:30:45Z"}`,
		},
		{
			name:  "nan becomes null",
			path:  "sensors.main.flowrate",
			value: telemetry.Float(math.NaN()),
			want:  `{"path":"sensors.main.flowrate","value":null,"timestamp":"2026-02-03T10:30:45Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatPayload(tt.path, tt.value, ts)
			if err != nil {
				t.Fatalf("FormatPayload error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	got, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(got) != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "STARTUP",
	}

	got, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"STARTUP"}}`
	if string(got) != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"system":{"event":"HEARTBEAT","outputs":3}}`)
	got, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload error: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", got)
	}
}

func TestWillPayload(t *testing.T) {
	want := `{"system":{"event":"OFFLINE","reason":"CONNECTION_LOST"}}`
	if got := string(WillPayload()); got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	fake := NewFakePublisher()
	fake.Now = func() time.Time { return time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC) }

	if err := fake.Publish("a.b", telemetry.Float(1.5)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := fake.Publish("c", telemetry.Bool(false)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := fake.Publish("a.b", telemetry.Float(2.5)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if len(fake.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(fake.Messages))
	}
	vals := fake.ValuesFor("a.b")
	if len(vals) != 2 || vals[0].F != 1.5 || vals[1].F != 2.5 {
		t.Errorf("ValuesFor(a.b) = %v", vals)
	}
	want := `{"path":"a.b","value":1.5,"timestamp":"2026-02-03T10:30:45Z"}`
	if string(fake.Payloads[0]) != want {
		t.Errorf("payload got %s\nwant %s", fake.Payloads[0], want)
	}
}

func TestFakePublisherError(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker down")

	if err := fake.Publish("x", telemetry.Int(1)); err == nil {
		t.Error("expected error")
	}
	if len(fake.Messages) != 0 {
		t.Errorf("expected no messages recorded on error, got %d", len(fake.Messages))
	}
}

func TestFakePublisherSystemAndReset(t *testing.T) {
	fake := NewFakePublisher()
	if err := fake.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem error: %v", err)
	}
	if len(fake.SystemEvents) != 1 || !fake.SystemEvents[0].Retained {
		t.Errorf("expected one retained system event, got %+v", fake.SystemEvents)
	}
	fake.Close()
	if !fake.Closed {
		t.Error("expected Closed after Close")
	}

	fake.Reset()
	if fake.SystemEvents != nil || fake.Closed {
		t.Error("expected Reset to clear state")
	}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	open         bool
	sent         []sent
	err          error
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisherWithClient(c, "boat", 8)

	if err := p.Publish("environment.pressure", telemetry.Float(1013.25)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(c.sent))
	}
	if c.sent[0].topic != "boat/environment/pressure" {
		t.Errorf("topic = %q", c.sent[0].topic)
	}
	if c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("telemetry should be qos 0 not retained, got qos=%d retained=%v", c.sent[0].qos, c.sent[0].retained)
	}
}

func TestRealPublisherBuffersAndReplays(t *testing.T) {
	c := &fakeClient{open: false}
	p := newPublisherWithClient(c, "boat", 2)

	for i := 0; i < 3; i++ {
		if err := p.Publish("n", telemetry.Int(int64(i))); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}
	if len(c.sent) != 0 {
		t.Fatalf("expected nothing sent while disconnected, got %d", len(c.sent))
	}
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", p.Buffered())
	}

	c.open = true
	p.replay()

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 replayed, got %d", len(c.sent))
	}
	want := []string{`"value":1`, `"value":2`}
	for i, w := range want {
		if !strings.Contains(string(c.sent[i].payload), w) {
			t.Errorf("replayed %d = %s, want it to contain %s", i, c.sent[i].payload, w)
		}
	}
	if p.Buffered() != 0 {
		t.Errorf("expected empty backlog after replay, got %d", p.Buffered())
	}
}

func TestRealPublisherSystemEvent(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisherWithClient(c, "boat", 2)

	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem error: %v", err)
	}
	if c.sent[0].topic != "boat/system" || c.sent[0].qos != 1 || !c.sent[0].retained {
		t.Errorf("unexpected system publish %+v", c.sent[0])
	}

	c.err = errors.New("rejected")
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Errorf("non-waiting publish should not surface token errors, got %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "SHUTDOWN", Wait: true}); err == nil {
		t.Error("expected token error to surface when waiting")
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisherWithClient(c, "boat", 2)
	p.Close()
	if !c.disconnected {
		t.Error("expected Disconnect on Close")
	}
	if !p.IsConnected() {
		t.Error("IsConnected should reflect the client")
	}
}

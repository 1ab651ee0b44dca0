package signalk

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/sweeney/sk-sensor/internal/telemetry"
)

func jsonEqual(t *testing.T, want string, got []byte) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expected JSON: %v", err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("invalid JSON %s: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Errorf("JSON mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestFormatDelta(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC)
	got, err := FormatDelta("sk-sensor", ts, PathValue{Path: "environment.temperature", Value: telemetry.Float(294.65)})
	if err != nil {
		t.Fatalf("FormatDelta: %v", err)
	}

	want := `{"updates":[{"source":{"label":"sk-sensor"},"timestamp":"2026-02-03T10:30:45Z","values":[{"path":"environment.temperature","value":294.65}]}]}`
	jsonEqual(t, want, got)
}

func TestFormatMeta(t *testing.T) {
	got, err := FormatMeta([]telemetry.Meta{
		{Path: "sensors.analog_input.voltage", Units: "V", Description: "Analog input voltage"},
		{Path: "sensors.digital_input2.value"},
	})
	if err != nil {
		t.Fatalf("FormatMeta: %v", err)
	}

	want := `{"updates":[{"meta":[{"path":"sensors.analog_input.voltage","value":{"units":"V","description":"Analog input voltage"}}]}]}`
	jsonEqual(t, want, got)

	none, err := FormatMeta([]telemetry.Meta{{Path: "x"}})
	if err != nil {
		t.Fatalf("FormatMeta: %v", err)
	}
	if none != nil {
		t.Errorf("expected no meta message, got %s", none)
	}
}

func TestPublishKeepsNewestWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	c := New(Options{URL: "ws://unused", Queue: 2})
	for i := 1; i <= 100; i++ {
		if err := c.Publish("a", telemetry.Int(int64(i))); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	if c.Drops() != 98 {
		t.Errorf("Drops: got %d, want 98", c.Drops())
	}
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("expected one log line for the outage, got %d:\n%s", n, buf.String())
	}

	for _, want := range []string{`"value":99`, `"value":100`} {
		data := <-c.queue
		if !strings.Contains(string(data), want) {
			t.Errorf("queued delta %s, want it to contain %s", data, want)
		}
	}
}

func TestPublishWarnsAgainAfterReconnect(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	c := New(Options{URL: "ws://unused", Queue: 1})
	c.Publish("a", telemetry.Int(1))
	c.Publish("a", telemetry.Int(2))
	c.warned.Store(false) // as a new session does
	c.Publish("a", telemetry.Int(3))
	c.Publish("a", telemetry.Int(4))

	if n := strings.Count(buf.String(), "dropping oldest"); n != 2 {
		t.Errorf("expected one warning per outage, got %d:\n%s", n, buf.String())
	}
}

// deltaServer accepts one connection at a time and forwards every text
// message it receives.
func deltaServer(t *testing.T, auth string) (*httptest.Server, <-chan []byte) {
	t.Helper()
	msgs := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != "" && r.Header.Get("Authorization") != "Bearer "+auth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			msgs <- data
		}
	}))
	t.Cleanup(srv.Close)
	return srv, msgs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/signalk/v1/stream?subscribe=none"
}

func receive(t *testing.T, msgs <-chan []byte) map[string]any {
	t.Helper()
	select {
	case data := <-msgs:
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("invalid delta %s: %v", data, err)
		}
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delta")
	}
	return nil
}

func TestClientStreamsMetaThenValues(t *testing.T) {
	srv, msgs := deltaServer(t, "secret")

	c := New(Options{URL: wsURL(srv), Token: "secret", Label: "test", Retry: 10 * time.Millisecond})
	if err := c.SetMeta([]telemetry.Meta{{Path: "environment.pressure", Units: "Pa"}}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	meta := receive(t, msgs)
	update := meta["updates"].([]any)[0].(map[string]any)
	if _, ok := update["meta"]; !ok {
		t.Fatalf("expected meta first, got %v", meta)
	}

	if err := c.Publish("environment.pressure", telemetry.Float(1013.25)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	delta := receive(t, msgs)
	update = delta["updates"].([]any)[0].(map[string]any)
	values := update["values"].([]any)
	if len(values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(values))
	}
	pv := values[0].(map[string]any)
	if pv["path"] != "environment.pressure" || pv["value"] != 1013.25 {
		t.Errorf("value: got %v", pv)
	}
	if label := update["source"].(map[string]any)["label"]; label != "test" {
		t.Errorf("label: got %v", label)
	}

	deadline := time.Now().Add(time.Second)
	for c.Sent() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Sent() != 1 {
		t.Errorf("Sent: got %d, want 1", c.Sent())
	}
	if !c.IsConnected() {
		t.Error("expected connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.IsConnected() {
		t.Error("expected disconnected after Run returns")
	}
}

func TestClientRetriesUntilCancelled(t *testing.T) {
	srv, _ := deltaServer(t, "secret")

	c := New(Options{URL: wsURL(srv), Token: "wrong", Retry: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected never connected with a bad token")
	}
}

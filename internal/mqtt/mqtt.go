// Package mqtt publishes telemetry values and system events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// DefaultTopicPrefix is the topic root when none is configured.
const DefaultTopicPrefix = "sk-sensor"

// Topic maps a dot-delimited telemetry path onto an MQTT topic under prefix:
// "environment.temperature" -> "<prefix>/environment/temperature".
func Topic(prefix, path string) string {
	return prefix + "/" + strings.ReplaceAll(path, ".", "/")
}

// SystemTopic is the topic for system lifecycle events under prefix.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Publisher publishes telemetry and lifecycle events.
type Publisher interface {
	telemetry.Publisher

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
	Wait       bool   // Block until the broker acknowledges (used for SHUTDOWN)
}

// Payload is the JSON body of a telemetry message.
type Payload struct {
	Path      string          `json:"path"`
	Value     telemetry.Value `json:"value"`
	Timestamp string          `json:"timestamp"`
}

// FormatPayload creates the JSON payload for a telemetry value.
func FormatPayload(path string, v telemetry.Value, ts time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Path:      path,
		Value:     v,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is the last-will message the broker publishes if the
// connection drops without a clean disconnect.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "CONNECTION_LOST"}})
	return data
}

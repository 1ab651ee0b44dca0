package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          LinkStatus   `json:"mqtt"`
	SignalK       LinkStatus   `json:"signalk"`
	Loop          LoopJSON     `json:"loop"`
	Outputs       []OutputJSON `json:"outputs"`
	Config        ConfigJSON   `json:"config"`
}

// LinkStatus reports a transport's connection state.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
}

// LoopJSON is the JSON representation of scheduler statistics.
type LoopJSON struct {
	Tasks            int    `json:"tasks"`
	Panics           uint64 `json:"panics"`
	SubscriberPanics uint64 `json:"subscriber_panics"`
	PublishFailures  uint64 `json:"publish_failures"`
	PublishDrops     uint64 `json:"publish_drops"`
	CollapsedEvents  uint64 `json:"collapsed_events"`
}

// OutputJSON is one published output.
type OutputJSON struct {
	Path       string           `json:"path"`
	Key        string           `json:"key"`
	Title      string           `json:"title,omitempty"`
	Units      string           `json:"units,omitempty"`
	Value      *telemetry.Value `json:"value"`
	Updated    string           `json:"updated,omitempty"`
	AgeSeconds *float64         `json:"age_seconds,omitempty"`
	Updates    uint64           `json:"updates"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	SignalK     string `json:"signalk"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	outputs := make([]OutputJSON, 0, len(snap.Readings))
	for _, r := range snap.Readings {
		o := OutputJSON{
			Path:    r.Meta.Path,
			Key:     r.Meta.Key(),
			Title:   r.Meta.Title,
			Units:   r.Meta.Units,
			Updates: r.Updates,
		}
		if r.Updates > 0 {
			v := r.Value
			age := snap.Now.Sub(r.At).Seconds()
			o.Value = &v
			o.Updated = r.At.UTC().Format(time.RFC3339)
			o.AgeSeconds = &age
		}
		outputs = append(outputs, o)
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          LinkStatus{Connected: snap.MQTTConnected, URL: snap.Config.Broker},
		SignalK:       LinkStatus{Connected: snap.SignalKConnected, URL: snap.Config.SignalK},
		Loop: LoopJSON{
			Tasks:            snap.Loop.Tasks,
			Panics:           snap.Loop.Panics,
			SubscriberPanics: snap.Loop.SubscriberPanics,
			PublishFailures:  snap.Loop.PublishFailures,
			PublishDrops:     snap.Loop.PublishDrops,
			CollapsedEvents:  snap.Loop.CollapsedEvents,
		},
		Outputs: outputs,
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			SignalK:     snap.Config.SignalK,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// Package signalk streams telemetry to a Signal K server as delta messages
// over a WebSocket.
package signalk

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// Delta is a Signal K delta message.
type Delta struct {
	Context string   `json:"context,omitempty"`
	Updates []Update `json:"updates"`
}

// Update groups values (or metadata) sharing a source and timestamp.
type Update struct {
	Source    *Source     `json:"source,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Values    []PathValue `json:"values,omitempty"`
	Meta      []PathMeta  `json:"meta,omitempty"`
}

// Source identifies the producer of an update.
type Source struct {
	Label string `json:"label"`
}

// PathValue is one value in an update.
type PathValue struct {
	Path  string          `json:"path"`
	Value telemetry.Value `json:"value"`
}

// PathMeta carries display metadata for a path.
type PathMeta struct {
	Path  string    `json:"path"`
	Value MetaValue `json:"value"`
}

// MetaValue is the metadata object Signal K stores per path.
type MetaValue struct {
	Units       string `json:"units,omitempty"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// FormatDelta encodes values as a single-update delta.
func FormatDelta(label string, ts time.Time, values ...PathValue) ([]byte, error) {
	return json.Marshal(Delta{
		Updates: []Update{{
			Source:    &Source{Label: label},
			Timestamp: ts.UTC().Format(time.RFC3339Nano),
			Values:    values,
		}},
	})
}

// FormatMeta encodes output metadata as a meta delta. Outputs without
// units, description or title are skipped; nil is returned if none remain.
func FormatMeta(metas []telemetry.Meta) ([]byte, error) {
	var entries []PathMeta
	for _, m := range metas {
		if m.Units == "" && m.Description == "" && m.Title == "" {
			continue
		}
		entries = append(entries, PathMeta{
			Path: m.Path,
			Value: MetaValue{
				Units:       m.Units,
				Description: m.Description,
				DisplayName: m.Title,
			},
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return json.Marshal(Delta{Updates: []Update{{Meta: entries}}})
}

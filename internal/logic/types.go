// Package logic contains the pure algorithms behind the sensor pipelines:
// debounced edge counting, level debouncing and rate computation.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time or time.Duration parameters.
package logic

import (
	"fmt"
	"time"
)

// Edge is a signal edge polarity. A configured Edge selects which edge
// events are of interest; an observed Edge is always EdgeRising or EdgeFalling.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge converts a configuration string into an Edge.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both", "change":
		return EdgeBoth, nil
	case "", "none":
		return EdgeNone, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q", s)
}

// Accepts reports whether an observed edge matches this configured polarity.
func (e Edge) Accepts(observed Edge) bool {
	switch e {
	case EdgeBoth:
		return observed == EdgeRising || observed == EdgeFalling
	case EdgeRising, EdgeFalling:
		return observed == e
	}
	return false
}

// EdgeFor returns the edge that produced the given new level.
func EdgeFor(level bool) Edge {
	if level {
		return EdgeRising
	}
	return EdgeFalling
}

// Count is one read of an EdgeCounter: N edges accumulated over Elapsed,
// read at At. Elapsed is zero on the first read.
type Count struct {
	N       uint64
	Elapsed time.Duration
	At      time.Time
}

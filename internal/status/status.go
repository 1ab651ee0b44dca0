// Package status provides a thread-safe view of the daemon's latest outputs
// and connectivity. It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	SignalK     string
	HTTPAddr    string
}

// Reading is the latest value published on a path.
type Reading struct {
	Meta    telemetry.Meta
	Value   telemetry.Value
	At      time.Time
	Updates uint64
}

// LoopStats summarizes the scheduler and the pipelines running on it.
type LoopStats struct {
	Tasks  int
	Panics uint64 // task panics recovered by the loop

	SubscriberPanics uint64 // sink panics recovered during fan-out
	PublishFailures  uint64 // output publishes that returned an error
	PublishDrops     uint64 // of those, values dropped by a full queue
	CollapsedEvents  uint64 // input events overwritten before a tick
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Readings         []Reading
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	SignalKConnected bool
	Loop             LoopStats
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Reading returns the reading for path.
func (s Snapshot) Reading(path string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.Meta.Path == path {
			return r, true
		}
	}
	return Reading{}, false
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// telemetry.Publisher so it can sit alongside the network transports.
type Tracker struct {
	mu       sync.RWMutex
	now      func() time.Time
	readings map[string]*Reading
	snap     Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		now:      time.Now,
		readings: make(map[string]*Reading),
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetClock replaces the time source used for reading timestamps and Now.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Declare registers outputs so they are listed, with metadata, before
// their first value arrives.
func (t *Tracker) Declare(metas ...telemetry.Meta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range metas {
		if r, ok := t.readings[m.Path]; ok {
			r.Meta = m
			continue
		}
		t.readings[m.Path] = &Reading{Meta: m}
	}
}

// Publish records v as the latest value on path.
func (t *Tracker) Publish(path string, v telemetry.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.readings[path]
	if !ok {
		r = &Reading{Meta: telemetry.Meta{Path: path}}
		t.readings[path] = r
	}
	r.Value = v
	r.At = t.now()
	r.Updates++
	return nil
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetSignalKConnected sets the Signal K stream status.
func (t *Tracker) SetSignalKConnected(connected bool) {
	t.mu.Lock()
	t.snap.SignalKConnected = connected
	t.mu.Unlock()
}

// SetLoop records scheduler statistics.
func (t *Tracker) SetLoop(stats LoopStats) {
	t.mu.Lock()
	t.snap.Loop = stats
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state. Readings are
// ordered by sort order, then path.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Readings = make([]Reading, 0, len(t.readings))
	for _, r := range t.readings {
		s.Readings = append(s.Readings, *r)
	}
	s.Now = t.now()
	t.mu.RUnlock()

	sort.Slice(s.Readings, func(i, j int) bool {
		a, b := s.Readings[i].Meta, s.Readings[j].Meta
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Path < b.Path
	})
	return s
}

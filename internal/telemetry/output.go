package telemetry

import (
	"errors"
	"log"
	"sort"
)

// Meta identifies a published output to the configuration layer and to
// humans reading the status page.
type Meta struct {
	Path        string // telemetry path, e.g. "sensors.main.flowrate"
	ConfigPath  string // stable handle for the configuration layer
	Title       string
	Description string
	Units       string
	SortOrder   int
}

// Key returns the handle used to look the output up: ConfigPath when set,
// otherwise Path.
func (m Meta) Key() string {
	if m.ConfigPath != "" {
		return m.ConfigPath
	}
	return m.Path
}

// Configurable is anything that exposes Meta to the configuration layer.
type Configurable interface {
	Meta() Meta
}

// Output is a terminal pipeline stage that publishes every value it receives.
type Output[T Scalar] struct {
	meta Meta
	pub  Publisher

	publishes uint64
	failures  uint64
	drops     uint64
	failing   bool
}

// NewOutput creates an output publishing to pub under meta.Path.
func NewOutput[T Scalar](pub Publisher, meta Meta) *Output[T] {
	return &Output[T]{meta: meta, pub: pub}
}

// Set publishes v. Publish errors are counted, never propagated upstream.
// Only the first error of a failing run is logged, and the recovery after it.
func (o *Output[T]) Set(v T) {
	o.publishes++
	err := o.pub.Publish(o.meta.Path, ValueOf(v))
	if err == nil {
		if o.failing {
			o.failing = false
			log.Printf("telemetry: %s: publishing again", o.meta.Path)
		}
		return
	}

	o.failures++
	if errors.Is(err, ErrQueueFull) {
		o.drops++
	}
	if !o.failing {
		o.failing = true
		log.Printf("telemetry: %s: %v", o.meta.Path, err)
	}
}

// Meta returns the output's identifying metadata.
func (o *Output[T]) Meta() Meta {
	return o.meta
}

// Publishes returns how many values were handed to the publisher.
func (o *Output[T]) Publishes() uint64 {
	return o.publishes
}

// Failures returns how many publishes returned an error.
func (o *Output[T]) Failures() uint64 {
	return o.failures
}

// Drops returns how many of the failures were a full downstream queue.
func (o *Output[T]) Drops() uint64 {
	return o.drops
}

// Registry lists the configurable outputs of the running pipelines.
type Registry struct {
	items []Configurable
}

// Add registers c and returns it.
func (r *Registry) Add(c Configurable) Configurable {
	r.items = append(r.items, c)
	return c
}

// Items returns all metadata ordered by SortOrder, then Path.
func (r *Registry) Items() []Meta {
	out := make([]Meta, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c.Meta())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Len returns the number of registered outputs.
func (r *Registry) Len() int {
	return len(r.items)
}

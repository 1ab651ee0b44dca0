package gpio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/sk-sensor/internal/logic"
)

// FakeChip is a test double whose line levels are set by the test.
// FireEdge drives watched lines the way the kernel would.
type FakeChip struct {
	mu      sync.Mutex
	levels  map[int]bool
	writes  map[int][]bool
	watches map[int]*fakeWatch
	// InputError, if set, is returned by Input, Output and Watch.
	InputError error
	// ReadError, if set, is returned by every Input.Read.
	ReadError error
	Closed    bool
}

type fakeWatch struct {
	chip   *FakeChip
	pin    int
	edge   logic.Edge
	h      EdgeHandler
	closed bool
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		levels:  make(map[int]bool),
		writes:  make(map[int][]bool),
		watches: make(map[int]*fakeWatch),
	}
}

// SetLevel sets the level an Input on pin will read.
func (f *FakeChip) SetLevel(pin int, level bool) {
	f.mu.Lock()
	f.levels[pin] = level
	f.mu.Unlock()
}

// Writes returns the levels written to an output pin in order.
func (f *FakeChip) Writes(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes[pin]...)
}

// Watched reports whether pin has an open watch.
func (f *FakeChip) Watched(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[pin]
	return ok && !w.closed
}

// FireEdge delivers an edge on pin to its watch if the watch accepts that
// polarity. It reports whether the handler ran.
func (f *FakeChip) FireEdge(pin int, edge logic.Edge, ts time.Duration) bool {
	f.mu.Lock()
	w, ok := f.watches[pin]
	if !ok || w.closed || !w.edge.Accepts(edge) {
		f.mu.Unlock()
		return false
	}
	level := edge == logic.EdgeRising
	f.levels[pin] = level
	h := w.h
	f.mu.Unlock()

	h(edge, level, ts)
	return true
}

// Input returns a line reading the level set by SetLevel.
func (f *FakeChip) Input(pin int, pull Pull) (Input, error) {
	if f.InputError != nil {
		return nil, f.InputError
	}
	f.mu.Lock()
	if _, ok := f.levels[pin]; !ok {
		f.levels[pin] = pull == PullUp
	}
	f.mu.Unlock()
	return &fakeInput{chip: f, pin: pin}, nil
}

// Output returns a line whose writes are recorded.
func (f *FakeChip) Output(pin int, initial bool) (Output, error) {
	if f.InputError != nil {
		return nil, f.InputError
	}
	f.mu.Lock()
	f.levels[pin] = initial
	f.mu.Unlock()
	return &fakeOutput{chip: f, pin: pin}, nil
}

// Watch registers h for edges on pin. Only one watch per pin is allowed.
func (f *FakeChip) Watch(pin int, edge logic.Edge, pull Pull, h EdgeHandler) (io.Closer, error) {
	if f.InputError != nil {
		return nil, f.InputError
	}
	if edge == logic.EdgeNone {
		return nil, errors.New("gpio: watch needs an edge")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.watches[pin]; ok && !w.closed {
		return nil, fmt.Errorf("gpio: pin %d already watched", pin)
	}
	w := &fakeWatch{chip: f, pin: pin, edge: edge, h: h}
	f.watches[pin] = w
	return w, nil
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.Closed = true
	return nil
}

func (w *fakeWatch) Close() error {
	w.chip.mu.Lock()
	w.closed = true
	w.chip.mu.Unlock()
	return nil
}

type fakeInput struct {
	chip *FakeChip
	pin  int
}

func (i *fakeInput) Read() (bool, error) {
	if i.chip.ReadError != nil {
		return false, i.chip.ReadError
	}
	i.chip.mu.Lock()
	defer i.chip.mu.Unlock()
	return i.chip.levels[i.pin], nil
}

func (i *fakeInput) Close() error { return nil }

type fakeOutput struct {
	chip *FakeChip
	pin  int
}

func (o *fakeOutput) Write(level bool) error {
	o.chip.mu.Lock()
	defer o.chip.mu.Unlock()
	o.chip.levels[o.pin] = level
	o.chip.writes[o.pin] = append(o.chip.writes[o.pin], level)
	return nil
}

func (o *fakeOutput) Close() error { return nil }

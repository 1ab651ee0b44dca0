// Package gpio provides digital inputs, outputs and edge watches with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sweeney/sk-sensor/internal/logic"
)

// DefaultChip is the character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pull selects the line bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// ParsePull parses "up", "down" or "none".
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	}
	return PullNone, fmt.Errorf("gpio: unknown pull %q", s)
}

// EdgeHandler receives an edge observed on a watched line. ts is the
// kernel's monotonic event timestamp; level is the line level after the edge.
// Handlers run on the driver's event goroutine and must not block.
type EdgeHandler func(edge logic.Edge, level bool, ts time.Duration)

// Input is a line read on demand.
type Input interface {
	Read() (bool, error)
	Close() error
}

// Output is a line driven by the application.
type Output interface {
	Write(level bool) error
	Close() error
}

// Chip hands out lines on a GPIO controller.
type Chip interface {
	Input(pin int, pull Pull) (Input, error)
	Output(pin int, initial bool) (Output, error)
	// Watch delivers edges of the given polarity to h until the returned
	// closer is closed.
	Watch(pin int, edge logic.Edge, pull Pull, h EdgeHandler) (io.Closer, error)
	Close() error
}

// Toggler flips an output each time Toggle is called.
type Toggler struct {
	out   Output
	level bool
}

// NewToggler wraps out, whose current level is initial.
func NewToggler(out Output, initial bool) *Toggler {
	return &Toggler{out: out, level: initial}
}

// Toggle inverts the output and returns the new level.
func (t *Toggler) Toggle() (bool, error) {
	next := !t.level
	if err := t.out.Write(next); err != nil {
		return t.level, fmt.Errorf("toggle: %w", err)
	}
	t.level = next
	return next, nil
}

// Level returns the last level written.
func (t *Toggler) Level() bool {
	return t.level
}

//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/sk-sensor/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealChip drives lines through the Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// NewRealChip opens the named chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

func biasOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func edgeOption(e logic.Edge) (gpiocdev.LineReqOption, error) {
	switch e {
	case logic.EdgeRising:
		return gpiocdev.WithRisingEdge, nil
	case logic.EdgeFalling:
		return gpiocdev.WithFallingEdge, nil
	case logic.EdgeBoth:
		return gpiocdev.WithBothEdges, nil
	}
	return nil, errors.New("gpio: watch needs an edge")
}

// Input requests pin as an input with the given bias.
func (c *RealChip) Input(pin int, pull Pull) (Input, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &realLine{line: line}, nil
}

// Output requests pin as an output driven to initial.
func (c *RealChip) Output(pin int, initial bool) (Output, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(levelValue(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &realLine{line: line, output: true}, nil
}

// Watch requests pin with edge detection. h runs on gpiocdev's event
// goroutine with the kernel event timestamp.
func (c *RealChip) Watch(pin int, edge logic.Edge, pull Pull, h EdgeHandler) (io.Closer, error) {
	eopt, err := edgeOption(edge)
	if err != nil {
		return nil, err
	}
	handler := func(evt gpiocdev.LineEvent) {
		observed := logic.EdgeFalling
		if evt.Type == gpiocdev.LineEventRisingEdge {
			observed = logic.EdgeRising
		}
		h(observed, observed == logic.EdgeRising, evt.Timestamp)
	}
	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		biasOption(pull),
		eopt,
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		return nil, fmt.Errorf("watch pin %d: %w", pin, err)
	}
	return &realLine{line: line}, nil
}

// Close releases the chip. Lines must be closed by their owners.
func (c *RealChip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realLine struct {
	line   *gpiocdev.Line
	output bool
}

func (l *realLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return v != 0, nil
}

func (l *realLine) Write(level bool) error {
	if err := l.line.SetValue(levelValue(level)); err != nil {
		return fmt.Errorf("write pin: %w", err)
	}
	return nil
}

// Close returns the line to an input with pull-down, matching Pi boot
// defaults, before releasing it.
func (l *realLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	return errors.Join(errs...)
}

func levelValue(level bool) int {
	if level {
		return 1
	}
	return 0
}

//go:build !linux

package gpio

import (
	"errors"
	"io"

	"github.com/sweeney/sk-sensor/internal/logic"
)

// ErrUnsupported is returned by every RealChip method off Linux.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, ErrUnsupported
}

func (c *RealChip) Input(pin int, pull Pull) (Input, error) {
	return nil, ErrUnsupported
}

func (c *RealChip) Output(pin int, initial bool) (Output, error) {
	return nil, ErrUnsupported
}

func (c *RealChip) Watch(pin int, edge logic.Edge, pull Pull, h EdgeHandler) (io.Closer, error) {
	return nil, ErrUnsupported
}

func (c *RealChip) Close() error {
	return nil
}

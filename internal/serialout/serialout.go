// Package serialout mirrors published values to a serial console as text lines.
package serialout

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
	"go.bug.st/serial"
)

// DefaultBaudRate matches the usual console speed of the board.
const DefaultBaudRate = 115200

// Console writes "<timestamp> <path>: <value>" lines to w.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewConsole writes to w. If w is also an io.Closer, Close closes it.
func NewConsole(w io.Writer) *Console {
	c, _ := w.(io.Closer)
	return &Console{w: w, c: c, now: time.Now}
}

// Open opens a serial port and returns a Console on it.
func Open(port string, baud int) (*Console, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewConsole(p), nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Publish writes one line.
func (c *Console) Publish(path string, v telemetry.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s: %s\r\n", c.now().UTC().Format(time.RFC3339), path, v)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close closes the underlying port.
func (c *Console) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}

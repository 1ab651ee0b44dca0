//go:build linux

package i2c

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// ioctl request selecting the target address for subsequent read/write.
const i2cSlave = 0x0703

// Bus is an open I2C adapter. Transactions are serialized.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
	set  bool
}

var _ drivers.I2C = (*Bus)(nil)

// Open opens /dev/i2c-<adapter>.
func Open(adapter int) (*Bus, error) {
	f, err := os.OpenFile(DevicePath(adapter), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c adapter %d: %w", adapter, err)
	}
	return &Bus{f: f}, nil
}

// Tx writes w to the device at addr, then reads len(r) bytes from it.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set || b.addr != addr {
		if err := unix.IoctlSetInt(int(b.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c: select 0x%02x: %w", addr, err)
		}
		b.addr, b.set = addr, true
	}
	if len(w) > 0 {
		if _, err := b.f.Write(w); err != nil {
			return fmt.Errorf("i2c: write 0x%02x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := b.f.Read(r); err != nil {
			return fmt.Errorf("i2c: read 0x%02x: %w", addr, err)
		}
	}
	return nil
}

// Close releases the adapter.
func (b *Bus) Close() error {
	return b.f.Close()
}

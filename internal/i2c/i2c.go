// Package i2c exposes Linux /dev/i2c-N adapters as tinygo drivers.I2C buses.
package i2c

import "fmt"

// DevicePath returns the character device for adapter n.
func DevicePath(n int) string {
	return fmt.Sprintf("/dev/i2c-%d", n)
}

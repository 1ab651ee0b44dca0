package i2c

import "testing"

func TestDevicePath(t *testing.T) {
	if got := DevicePath(1); got != "/dev/i2c-1" {
		t.Errorf("DevicePath(1) = %q", got)
	}
}

func TestOpenMissingAdapter(t *testing.T) {
	if _, err := Open(9999); err == nil {
		t.Error("expected error opening a nonexistent adapter")
	}
}

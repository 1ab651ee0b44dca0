// Package analog reads ADC channels exposed by the Linux IIO subsystem.
package analog

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// SysfsRoot is where the kernel publishes IIO devices.
const SysfsRoot = "/sys/bus/iio/devices"

// Input reads one IIO voltage channel and scales it so that MaxRaw maps to
// Scale. With Scale set to the reference voltage the result is in volts.
type Input struct {
	fs     afero.Fs
	file   string
	maxRaw float64
	scale  float64
}

// NewInput returns an Input for in_voltage<channel>_raw of IIO device
// number device. maxRaw must be positive.
func NewInput(fs afero.Fs, device, channel int, maxRaw, scale float64) (*Input, error) {
	if maxRaw <= 0 {
		return nil, fmt.Errorf("analog: max raw must be positive, got %v", maxRaw)
	}
	file := path.Join(SysfsRoot, fmt.Sprintf("iio:device%d", device), fmt.Sprintf("in_voltage%d_raw", channel))
	return &Input{fs: fs, file: file, maxRaw: maxRaw, scale: scale}, nil
}

// NewOsInput is NewInput on the real filesystem.
func NewOsInput(device, channel int, maxRaw, scale float64) (*Input, error) {
	return NewInput(afero.NewOsFs(), device, channel, maxRaw, scale)
}

// Path returns the sysfs file read by the input.
func (in *Input) Path() string {
	return in.file
}

// Raw returns the unscaled ADC count.
func (in *Input) Raw() (int64, error) {
	data, err := afero.ReadFile(in.fs, in.file)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", in.file, err)
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", in.file, err)
	}
	return raw, nil
}

// Read returns raw/maxRaw*scale.
func (in *Input) Read() (float64, error) {
	raw, err := in.Raw()
	if err != nil {
		return 0, err
	}
	return float64(raw) / in.maxRaw * in.scale, nil
}

// Available reports whether the channel file exists.
func (in *Input) Available() bool {
	ok, err := afero.Exists(in.fs, in.file)
	return err == nil && ok
}

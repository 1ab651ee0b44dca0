// Package envsensor converts raw BME280 readings into the units published
// as environment telemetry.
package envsensor

import (
	"fmt"

	"github.com/chewxy/math32"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

// DefaultAddress is the BME280 address with SDO pulled high.
const DefaultAddress = 0x77

// SeaLevelHPa is the standard atmosphere used for altitude when none is configured.
const SeaLevelHPa = 1013.25

// Device is the raw interface of a BME280-class sensor. Temperature is in
// milli-degrees Celsius, pressure in milli-pascal and humidity in hundredths
// of a percent.
type Device interface {
	ReadTemperature() (int32, error)
	ReadPressure() (int32, error)
	ReadHumidity() (int32, error)
}

// NewBME280 checks and configures a BME280 at addr on bus.
func NewBME280(bus drivers.I2C, addr uint16) (Device, error) {
	dev := bme280.New(bus)
	dev.Address = addr
	if !dev.Connected() {
		return nil, fmt.Errorf("bme280: no device at 0x%02x", addr)
	}
	dev.Configure()
	return &dev, nil
}

// Reader exposes a Device in published units.
type Reader struct {
	dev      Device
	seaLevel float32
}

// NewReader wraps dev. seaLevelHPa is the reference pressure for Altitude;
// non-positive selects SeaLevelHPa.
func NewReader(dev Device, seaLevelHPa float64) *Reader {
	if seaLevelHPa <= 0 {
		seaLevelHPa = SeaLevelHPa
	}
	return &Reader{dev: dev, seaLevel: float32(seaLevelHPa)}
}

// Temperature returns kelvin.
func (r *Reader) Temperature() (float64, error) {
	mc, err := r.dev.ReadTemperature()
	if err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	return float64(mc)/1000 + 273.15, nil
}

// Pressure returns hectopascal.
func (r *Reader) Pressure() (float64, error) {
	hpa, err := r.pressure()
	return float64(hpa), err
}

func (r *Reader) pressure() (float32, error) {
	mpa, err := r.dev.ReadPressure()
	if err != nil {
		return 0, fmt.Errorf("read pressure: %w", err)
	}
	return float32(mpa) / 1000 / 100, nil
}

// Humidity returns relative humidity in percent.
func (r *Reader) Humidity() (float64, error) {
	h, err := r.dev.ReadHumidity()
	if err != nil {
		return 0, fmt.Errorf("read humidity: %w", err)
	}
	return float64(h) / 100, nil
}

// Altitude returns metres above the reference pressure level using the
// international barometric formula.
func (r *Reader) Altitude() (float64, error) {
	hpa, err := r.pressure()
	if err != nil {
		return 0, err
	}
	return float64(Altitude(hpa, r.seaLevel)), nil
}

// Altitude computes height in metres for pressure p given sea-level
// pressure p0, both in hPa.
func Altitude(p, p0 float32) float32 {
	return 44330 * (1 - math32.Pow(p/p0, 0.1903))
}

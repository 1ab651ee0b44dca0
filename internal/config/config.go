// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sweeney/sk-sensor/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Tick      time.Duration `yaml:"tick"`       // scheduler tick period
	LogValues bool          `yaml:"log_values"` // log every value seen by the log consumers

	MQTT    MQTTConfig    `yaml:"mqtt"`
	SignalK SignalKConfig `yaml:"signalk"`
	Serial  SerialConfig  `yaml:"serial"`
	HTTP    HTTPConfig    `yaml:"http"`
	GPIO    GPIOConfig    `yaml:"gpio"`

	Analog        AnalogConfig        `yaml:"analog_input"`
	DigitalOutput BlinkConfig         `yaml:"digital_output"`
	HeartbeatLED  BlinkConfig         `yaml:"heartbeat_led"`
	DigitalInput1 DigitalInputConfig  `yaml:"digital_input1"`
	DigitalInput2 DigitalInputConfig  `yaml:"digital_input2"`
	FlowMeter     FlowMeterConfig     `yaml:"flow_meter"`
	BME280        EnvironmentalConfig `yaml:"bme280"`
}

// OutputConfig holds the user-configurable parts of a published output.
type OutputConfig struct {
	Path        string `yaml:"path"`
	ConfigPath  string `yaml:"config_path"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Units       string `yaml:"units,omitempty"`
	SortOrder   int    `yaml:"sort_order,omitempty"`
}

// Meta converts the output configuration into telemetry metadata.
func (o OutputConfig) Meta() telemetry.Meta {
	return telemetry.Meta{
		Path:        o.Path,
		ConfigPath:  o.ConfigPath,
		Title:       o.Title,
		Description: o.Description,
		Units:       o.Units,
		SortOrder:   o.SortOrder,
	}
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Prefix    string        `yaml:"prefix"`
	Backlog   int           `yaml:"backlog"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// SignalKConfig contains the Signal K server stream. An empty URL disables it.
type SignalKConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	Label string `yaml:"label"`
	Queue int    `yaml:"queue"`
}

// SerialConfig contains the serial console. An empty port disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// HTTPConfig contains the status page listener. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// GPIOConfig selects the GPIO character device.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// AnalogConfig contains the IIO ADC input.
type AnalogConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Device   int           `yaml:"device"`
	Channel  int           `yaml:"channel"`
	MaxRaw   float64       `yaml:"max_raw"`
	Scale    float64       `yaml:"scale"`
	Interval time.Duration `yaml:"interval"`
	// Calibration applied after scaling: v*Multiplier + Offset.
	Multiplier float64      `yaml:"multiplier"`
	Offset     float64      `yaml:"offset"`
	Output     OutputConfig `yaml:"output"`
}

// BlinkConfig drives an output pin that toggles every interval. Pin -1 disables it.
type BlinkConfig struct {
	Pin      int           `yaml:"pin"`
	Interval time.Duration `yaml:"interval"`
}

// DigitalInputConfig contains a digital input line. Pin -1 disables it.
type DigitalInputConfig struct {
	Pin      int           `yaml:"pin"`
	Pull     string        `yaml:"pull"`
	Edge     string        `yaml:"edge,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
	Output   OutputConfig  `yaml:"output,omitempty"`
}

// FlowMeterConfig contains the pulse flow meter. Pin -1 disables it.
type FlowMeterConfig struct {
	Pin        int           `yaml:"pin"`
	Pull       string        `yaml:"pull"`
	Edge       string        `yaml:"edge"`
	Debounce   time.Duration `yaml:"debounce"`
	Interval   time.Duration `yaml:"interval"`
	Multiplier float64       `yaml:"multiplier"`
	Output     OutputConfig  `yaml:"output"`
}

// EnvironmentalConfig contains the BME280 sensor.
type EnvironmentalConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Bus         int           `yaml:"bus"`
	Address     int           `yaml:"address"`
	Interval    time.Duration `yaml:"interval"`
	SeaLevelHPa float64       `yaml:"sea_level_hpa"`
	Temperature OutputConfig  `yaml:"temperature"`
	Pressure    OutputConfig  `yaml:"pressure"`
	Humidity    OutputConfig  `yaml:"humidity"`
	Altitude    OutputConfig  `yaml:"altitude"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Tick: 10 * time.Millisecond,
		MQTT: MQTTConfig{
			Prefix:    "sk-sensor",
			Backlog:   256,
			Heartbeat: 15 * time.Minute,
		},
		SignalK: SignalKConfig{
			Label: "sk-sensor",
			Queue: 128,
		},
		Serial: SerialConfig{Baud: 115200},
		GPIO:   GPIOConfig{Chip: "gpiochip0"},
		Analog: AnalogConfig{
			Enabled:    true,
			MaxRaw:     4095,
			Scale:      3.3,
			Interval:   time.Second,
			Multiplier: 1,
			Output: OutputConfig{
				Path:        "sensors.analog_input.voltage",
				ConfigPath:  "/Sensors/Analog Input/Voltage",
				Title:       "Analog Input Voltage SK Output Path",
				Description: "The SK path to publish the analog input voltage",
				Units:       "V",
				SortOrder:   100,
			},
		},
		DigitalOutput: BlinkConfig{Pin: 15, Interval: time.Second},
		HeartbeatLED:  BlinkConfig{Pin: 25, Interval: time.Second},
		DigitalInput1: DigitalInputConfig{Pin: 14, Pull: "up", Edge: "both"},
		DigitalInput2: DigitalInputConfig{
			Pin:      13,
			Pull:     "up",
			Interval: time.Second,
			Output: OutputConfig{
				Path:        "sensors.digital_input2.value",
				ConfigPath:  "/Sensors/Digital Input 2/Value",
				Title:       "Digital Input 2 SK Output Path",
				Description: "Digital input 2 value",
				SortOrder:   200,
			},
		},
		FlowMeter: FlowMeterConfig{
			Pin:        27,
			Pull:       "up",
			Edge:       "falling",
			Debounce:   time.Millisecond,
			Interval:   time.Second,
			Multiplier: 1.0 / 4.5,
			Output: OutputConfig{
				Path:        "sensors.main.flowrate",
				ConfigPath:  "/sensors/flowrate/sk",
				Title:       "Frequency SK Output Path",
				Description: "Flow rate of the output of the pump",
				Units:       "L/min",
				SortOrder:   300,
			},
		},
		BME280: EnvironmentalConfig{
			Enabled:     true,
			Bus:         1,
			Address:     0x77,
			Interval:    10 * time.Second,
			SeaLevelHPa: 1013.25,
			Temperature: OutputConfig{Path: "environment.temperature", ConfigPath: "/Environment/Temperature", Units: "K", SortOrder: 400},
			Pressure:    OutputConfig{Path: "environment.pressure", ConfigPath: "/Environment/Pressure", Units: "hPa", SortOrder: 410},
			Humidity:    OutputConfig{Path: "environment.relativeHumidity", ConfigPath: "/Environment/Humidity", Units: "%", SortOrder: 420},
			Altitude:    OutputConfig{Path: "environment.altitude", ConfigPath: "/Environment/Altitude", Units: "m", SortOrder: 430},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ensureDefaults fills zero values that would make a component unusable.
func (c *Config) ensureDefaults() {
	d := Default()

	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = d.MQTT.Prefix
	}
	if c.MQTT.Backlog <= 0 {
		c.MQTT.Backlog = d.MQTT.Backlog
	}
	if c.SignalK.Label == "" {
		c.SignalK.Label = d.SignalK.Label
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = d.Serial.Baud
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = d.GPIO.Chip
	}
	if c.Analog.MaxRaw <= 0 {
		c.Analog.MaxRaw = d.Analog.MaxRaw
	}
	if c.Analog.Interval <= 0 {
		c.Analog.Interval = d.Analog.Interval
	}
	if c.Analog.Multiplier == 0 {
		c.Analog.Multiplier = d.Analog.Multiplier
	}
	if c.DigitalOutput.Interval <= 0 {
		c.DigitalOutput.Interval = d.DigitalOutput.Interval
	}
	if c.HeartbeatLED.Interval <= 0 {
		c.HeartbeatLED.Interval = d.HeartbeatLED.Interval
	}
	if c.DigitalInput2.Interval <= 0 {
		c.DigitalInput2.Interval = d.DigitalInput2.Interval
	}
	if c.FlowMeter.Interval <= 0 {
		c.FlowMeter.Interval = d.FlowMeter.Interval
	}
	if c.FlowMeter.Edge == "" {
		c.FlowMeter.Edge = d.FlowMeter.Edge
	}
	if c.FlowMeter.Multiplier == 0 {
		c.FlowMeter.Multiplier = d.FlowMeter.Multiplier
	}
	if c.BME280.Interval <= 0 {
		c.BME280.Interval = d.BME280.Interval
	}
	if c.BME280.Address == 0 {
		c.BME280.Address = d.BME280.Address
	}
	if c.BME280.SeaLevelHPa <= 0 {
		c.BME280.SeaLevelHPa = d.BME280.SeaLevelHPa
	}
}

// Validate rejects configurations the pipelines cannot be built from.
func (c *Config) Validate() error {
	if c.FlowMeter.Debounce < 0 {
		return fmt.Errorf("flow_meter.debounce must not be negative")
	}
	if c.DigitalInput1.Debounce < 0 {
		return fmt.Errorf("digital_input1.debounce must not be negative")
	}
	if c.BME280.Address < 0 || c.BME280.Address > 0x7f {
		return fmt.Errorf("bme280.address 0x%x is not a 7-bit address", c.BME280.Address)
	}
	outputs := c.Outputs()
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make(map[string]string)
	for _, name := range names {
		o := outputs[name]
		if o.Path == "" {
			return fmt.Errorf("%s: output path must not be empty", name)
		}
		if other, dup := paths[o.Path]; dup {
			return fmt.Errorf("%s: output path %q already used by %s", name, o.Path, other)
		}
		paths[o.Path] = name
	}
	return nil
}

// Outputs returns every output configuration keyed by a stable name.
func (c *Config) Outputs() map[string]OutputConfig {
	return map[string]OutputConfig{
		"analog_input":   c.Analog.Output,
		"digital_input2": c.DigitalInput2.Output,
		"flow_meter":     c.FlowMeter.Output,
		"temperature":    c.BME280.Temperature,
		"pressure":       c.BME280.Pressure,
		"humidity":       c.BME280.Humidity,
		"altitude":       c.BME280.Altitude,
	}
}

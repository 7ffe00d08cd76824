package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/serialport"
	"github.com/banshee-data/desk.report/internal/units"
)

// DefaultConfigPath is where cmd/desk looks when -config is not given.
const DefaultConfigPath = "config/desk.yaml"

// Defaults for optional settings.
const (
	DefaultID             = "jarvis_desk"
	DefaultUpdateInterval = 20 * time.Millisecond
	DefaultPort           = "/dev/ttyS0"
	DefaultQueueSize      = 16
)

var validStateClasses = map[string]bool{
	"":                 true,
	"measurement":      true,
	"total":            true,
	"total_increasing": true,
}

// Config is the static description of one desk. Pointer fields are
// optional; the Get* accessors return defaults for fields left unset.
type Config struct {
	ID             *string `yaml:"id,omitempty" json:"id,omitempty"`
	UpdateInterval *string `yaml:"update_interval,omitempty" json:"update_interval,omitempty"` // duration string like "20ms"
	DebounceCycles *int    `yaml:"debounce_cycles,omitempty" json:"debounce_cycles,omitempty"`
	WakeOnStart    *bool   `yaml:"wake_on_start,omitempty" json:"wake_on_start,omitempty"`
	FrameTimeout   *string `yaml:"frame_timeout,omitempty" json:"frame_timeout,omitempty"`
	QueueSize      *int    `yaml:"queue_size,omitempty" json:"queue_size,omitempty"`

	UART UARTConfig `yaml:"uart" json:"uart"`

	HC0Pin *PinConfig `yaml:"hc0_pin,omitempty" json:"hc0_pin,omitempty"`
	HC1Pin *PinConfig `yaml:"hc1_pin,omitempty" json:"hc1_pin,omitempty"`
	HC2Pin *PinConfig `yaml:"hc2_pin,omitempty" json:"hc2_pin,omitempty"`
	HC3Pin *PinConfig `yaml:"hc3_pin,omitempty" json:"hc3_pin,omitempty"`

	Height SensorConfig `yaml:"height" json:"height"`
}

// UARTConfig is the uart section.
type UARTConfig struct {
	Port                   string `yaml:"port,omitempty" json:"port,omitempty"`
	serialport.PortOptions `yaml:",inline"`
	// TXPin and RXPin are informational; the kernel owns the UART pins.
	TXPin string `yaml:"tx_pin,omitempty" json:"tx_pin,omitempty"`
	RXPin string `yaml:"rx_pin,omitempty" json:"rx_pin,omitempty"`
}

// GetPort returns the serial device path or DefaultPort.
func (u UARTConfig) GetPort() string {
	if u.Port == "" {
		return DefaultPort
	}
	return u.Port
}

// PinConfig binds one handset line to a GPIO. In YAML it is either a bare
// pin name (hc0_pin: GPIO17) or a mapping with number and inverted.
type PinConfig struct {
	Number   string `yaml:"number" json:"number"`
	Inverted bool   `yaml:"inverted,omitempty" json:"inverted,omitempty"`
}

// UnmarshalYAML accepts the scalar and mapping forms.
func (p *PinConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = PinConfig{Number: value.Value}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Number   yaml.Node `yaml:"number"`
			Inverted bool      `yaml:"inverted"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*p = PinConfig{Number: raw.Number.Value, Inverted: raw.Inverted}
		return nil
	default:
		return fmt.Errorf("line %d: pin must be a name or a mapping with number", value.Line)
	}
}

// SensorConfig is the height sensor section.
type SensorConfig struct {
	Name              *string  `yaml:"name,omitempty" json:"name,omitempty"`
	UnitOfMeasurement *string  `yaml:"unit_of_measurement,omitempty" json:"unit_of_measurement,omitempty"`
	AccuracyDecimals  *int     `yaml:"accuracy_decimals,omitempty" json:"accuracy_decimals,omitempty"`
	Icon              *string  `yaml:"icon,omitempty" json:"icon,omitempty"`
	DeviceClass       *string  `yaml:"device_class,omitempty" json:"device_class,omitempty"`
	StateClass        *string  `yaml:"state_class,omitempty" json:"state_class,omitempty"`
	RawUnit           *string  `yaml:"raw_unit,omitempty" json:"raw_unit,omitempty"`
	Min               *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max               *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// MetersPerCount and OffsetMeters replace raw_unit with a linear scale.
	MetersPerCount *float64 `yaml:"meters_per_count,omitempty" json:"meters_per_count,omitempty"`
	OffsetMeters   *float64 `yaml:"offset_meters,omitempty" json:"offset_meters,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Default returns a complete configuration for the usual Raspberry Pi
// wiring. It is what -dev runs with when no file is given.
func Default() *Config {
	return &Config{
		ID:             ptrString(DefaultID),
		UpdateInterval: ptrString(DefaultUpdateInterval.String()),
		DebounceCycles: ptrInt(button.DefaultDebounceCycles),
		WakeOnStart:    ptrBool(false),
		FrameTimeout:   ptrString(jarvis.DefaultFrameTimeout.String()),
		QueueSize:      ptrInt(DefaultQueueSize),
		UART: UARTConfig{
			Port:        DefaultPort,
			PortOptions: serialport.PortOptions{BaudRate: serialport.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		HC0Pin: &PinConfig{Number: "GPIO17"},
		HC1Pin: &PinConfig{Number: "GPIO27"},
		HC2Pin: &PinConfig{Number: "GPIO22"},
		HC3Pin: &PinConfig{Number: "GPIO23"},
		Height: SensorConfig{
			Name:              ptrString("Desk Height"),
			UnitOfMeasurement: ptrString(units.Meters),
			AccuracyDecimals:  ptrInt(jarvis.DefaultPrecision),
			Icon:              ptrString("mdi:ruler"),
			StateClass:        ptrString("measurement"),
			RawUnit:           ptrString("auto"),
			Min:               ptrFloat64(jarvis.DefaultMinMeters),
			Max:               ptrFloat64(jarvis.DefaultMaxMeters),
		},
	}
}

// Load reads a YAML (or JSON) configuration file and validates it.
// The file must have a .yaml, .yml or .json extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes. JSON is valid YAML, so
// both formats go through the same decoder.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.UpdateInterval != nil && *c.UpdateInterval != "" {
		d, err := time.ParseDuration(*c.UpdateInterval)
		if err != nil {
			return fmt.Errorf("invalid update_interval '%s': %w", *c.UpdateInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("update_interval must be positive, got %s", d)
		}
	}

	if c.FrameTimeout != nil && *c.FrameTimeout != "" {
		d, err := time.ParseDuration(*c.FrameTimeout)
		if err != nil {
			return fmt.Errorf("invalid frame_timeout '%s': %w", *c.FrameTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("frame_timeout must be non-negative, got %s", d)
		}
	}

	if c.DebounceCycles != nil && *c.DebounceCycles < 1 {
		return fmt.Errorf("debounce_cycles must be at least 1, got %d", *c.DebounceCycles)
	}

	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}

	if _, err := c.UART.PortOptions.Normalise(); err != nil {
		return fmt.Errorf("uart: %w", err)
	}

	seen := make(map[string]button.Line)
	for _, line := range button.Lines {
		p := c.Pin(line)
		if p == nil {
			continue
		}
		if p.Number == "" {
			return fmt.Errorf("%s_pin: number must not be empty", line)
		}
		if other, dup := seen[p.Number]; dup {
			return fmt.Errorf("%s_pin: pin %s already used by %s_pin", line, p.Number, other)
		}
		seen[p.Number] = line
	}

	return c.Height.Validate()
}

// Validate checks the height sensor section.
func (s *SensorConfig) Validate() error {
	if unit := s.GetUnitOfMeasurement(); !units.IsValid(unit) {
		return fmt.Errorf("height.unit_of_measurement %q is not one of: %s", unit, units.GetValidUnitsString())
	}
	if d := s.GetAccuracyDecimals(); d < 0 || d > 6 {
		return fmt.Errorf("height.accuracy_decimals must be between 0 and 6, got %d", d)
	}
	if sc := s.GetStateClass(); !validStateClasses[sc] {
		return fmt.Errorf("height.state_class %q is not supported", sc)
	}
	if _, err := jarvis.ParseRawUnit(s.GetRawUnit()); err != nil {
		return fmt.Errorf("height.raw_unit: %w", err)
	}
	if s.MetersPerCount != nil && *s.MetersPerCount <= 0 {
		return fmt.Errorf("height.meters_per_count must be positive, got %f", *s.MetersPerCount)
	}
	if s.OffsetMeters != nil && s.MetersPerCount == nil {
		return fmt.Errorf("height.offset_meters requires meters_per_count")
	}
	if lo, hi := s.GetMin(), s.GetMax(); lo >= hi {
		return fmt.Errorf("height.min (%f) must be below height.max (%f)", lo, hi)
	}
	return nil
}

// Pin returns the binding for line, or nil when the line is not wired.
func (c *Config) Pin(line button.Line) *PinConfig {
	switch line {
	case button.HC0:
		return c.HC0Pin
	case button.HC1:
		return c.HC1Pin
	case button.HC2:
		return c.HC2Pin
	case button.HC3:
		return c.HC3Pin
	}
	return nil
}

// Lines returns the configured lines and their pins.
func (c *Config) Lines() map[button.Line]PinConfig {
	out := make(map[button.Line]PinConfig)
	for _, line := range button.Lines {
		if p := c.Pin(line); p != nil {
			out[line] = *p
		}
	}
	return out
}

// Decoder builds the height decoder described by the height section.
func (c *Config) Decoder() jarvis.Decoder {
	d := jarvis.DefaultDecoder()
	if u, err := jarvis.ParseRawUnit(c.Height.GetRawUnit()); err == nil {
		d.Unit = u
	}
	if c.Height.MetersPerCount != nil {
		s := jarvis.Scale{MetersPerCount: *c.Height.MetersPerCount}
		if c.Height.OffsetMeters != nil {
			s.OffsetMeters = *c.Height.OffsetMeters
		}
		d.Scale = &s
	}
	d.Precision = c.Height.GetAccuracyDecimals()
	d.MinMeters = c.Height.GetMin()
	d.MaxMeters = c.Height.GetMax()
	return d
}

// GetID returns the component id or the default.
func (c *Config) GetID() string {
	if c.ID == nil || *c.ID == "" {
		return DefaultID
	}
	return *c.ID
}

// GetUpdateInterval parses and returns the poll interval.
func (c *Config) GetUpdateInterval() time.Duration {
	if c.UpdateInterval == nil || *c.UpdateInterval == "" {
		return DefaultUpdateInterval
	}
	d, err := time.ParseDuration(*c.UpdateInterval)
	if err != nil || d <= 0 {
		return DefaultUpdateInterval
	}
	return d
}

// GetFrameTimeout parses and returns the stale partial frame timeout.
func (c *Config) GetFrameTimeout() time.Duration {
	if c.FrameTimeout == nil || *c.FrameTimeout == "" {
		return jarvis.DefaultFrameTimeout
	}
	d, err := time.ParseDuration(*c.FrameTimeout)
	if err != nil {
		return jarvis.DefaultFrameTimeout
	}
	return d
}

// GetDebounceCycles returns the debounce window in polls.
func (c *Config) GetDebounceCycles() int {
	if c.DebounceCycles == nil {
		return button.DefaultDebounceCycles
	}
	return *c.DebounceCycles
}

// GetWakeOnStart reports whether Init sends the wake packet.
func (c *Config) GetWakeOnStart() bool {
	if c.WakeOnStart == nil {
		return false
	}
	return *c.WakeOnStart
}

// GetQueueSize returns the command queue capacity.
func (c *Config) GetQueueSize() int {
	if c.QueueSize == nil {
		return DefaultQueueSize
	}
	return *c.QueueSize
}

// GetName returns the sensor name.
func (s *SensorConfig) GetName() string {
	if s.Name == nil {
		return "Desk Height"
	}
	return *s.Name
}

// GetUnitOfMeasurement returns the display unit.
func (s *SensorConfig) GetUnitOfMeasurement() string {
	if s.UnitOfMeasurement == nil || *s.UnitOfMeasurement == "" {
		return units.Meters
	}
	return *s.UnitOfMeasurement
}

// GetAccuracyDecimals returns the number of decimals heights are rounded to.
func (s *SensorConfig) GetAccuracyDecimals() int {
	if s.AccuracyDecimals == nil {
		return jarvis.DefaultPrecision
	}
	return *s.AccuracyDecimals
}

func (s *SensorConfig) GetIcon() string {
	if s.Icon == nil {
		return "mdi:ruler"
	}
	return *s.Icon
}

func (s *SensorConfig) GetDeviceClass() string {
	if s.DeviceClass == nil {
		return ""
	}
	return *s.DeviceClass
}

func (s *SensorConfig) GetStateClass() string {
	if s.StateClass == nil {
		return "measurement"
	}
	return *s.StateClass
}

func (s *SensorConfig) GetRawUnit() string {
	if s.RawUnit == nil {
		return "auto"
	}
	return *s.RawUnit
}

func (s *SensorConfig) GetMin() float64 {
	if s.Min == nil {
		return jarvis.DefaultMinMeters
	}
	return *s.Min
}

func (s *SensorConfig) GetMax() float64 {
	if s.Max == nil {
		return jarvis.DefaultMaxMeters
	}
	return *s.Max
}

package jarvis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/desk.report/internal/units"
)

var (
	// ErrNotHeight means the frame is not a height report.
	ErrNotHeight = errors.New("frame is not a height report")
	// ErrOutOfRange means the decoded height is outside the physical range
	// of the desk frame.
	ErrOutOfRange = errors.New("height out of range")
)

// RawUnit is the unit the controller reports heights in.
type RawUnit int

const (
	// RawUnitAuto picks tenths of an inch below inchThreshold and
	// millimeters otherwise.
	RawUnitAuto RawUnit = iota
	RawUnitTenthInch
	RawUnitMillimeter
	RawUnitCustom
)

// The controller reports 240..530 when set to inches and 650..1290 when set
// to millimeters, so anything below 600 is taken as tenths of an inch.
const inchThreshold = 600

// Default decoder settings. The 3-stage frame travels 62..127cm; the range
// leaves a little slack either side.
const (
	DefaultPrecision = 4
	DefaultMinMeters = 0.60
	DefaultMaxMeters = 1.30
)

func (u RawUnit) String() string {
	switch u {
	case RawUnitAuto:
		return "auto"
	case RawUnitTenthInch:
		return "inch"
	case RawUnitMillimeter:
		return "mm"
	case RawUnitCustom:
		return "custom"
	default:
		return fmt.Sprintf("RawUnit(%d)", int(u))
	}
}

// ParseRawUnit parses the raw_unit configuration value.
func ParseRawUnit(s string) (RawUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return RawUnitAuto, nil
	case "inch", "in", "inches":
		return RawUnitTenthInch, nil
	case "mm", "millimeter", "millimeters":
		return RawUnitMillimeter, nil
	default:
		return RawUnitAuto, fmt.Errorf("unsupported raw unit %q: expected auto, inch or mm", s)
	}
}

// Scale maps a raw count to meters: OffsetMeters + raw*MetersPerCount.
type Scale struct {
	MetersPerCount float64
	OffsetMeters   float64
}

var (
	ScaleTenthInch  = Scale{MetersPerCount: units.MetersPerTenthInch}
	ScaleMillimeter = Scale{MetersPerCount: units.MetersPerMM}
)

// Height is a decoded height reading.
type Height struct {
	Meters float64 `json:"meters"`
	Raw    uint16  `json:"raw"`
	Unit   RawUnit `json:"-"`
}

// MM returns the height in millimeters.
func (h Height) MM() float64 { return h.Meters / units.MetersPerMM }

func (h Height) String() string {
	return fmt.Sprintf("%.4fm (raw %d %s)", h.Meters, h.Raw, h.Unit)
}

// Decoder turns height report frames into meters. The zero value is not
// useful; start from DefaultDecoder.
type Decoder struct {
	Unit RawUnit
	// Scale overrides Unit when set.
	Scale     *Scale
	Precision int
	MinMeters float64
	MaxMeters float64
}

// DefaultDecoder auto-detects the raw unit and reports 4 decimals.
func DefaultDecoder() Decoder {
	return Decoder{
		Unit:      RawUnitAuto,
		Precision: DefaultPrecision,
		MinMeters: DefaultMinMeters,
		MaxMeters: DefaultMaxMeters,
	}
}

// Decode converts a height report frame. The first two parameters are the
// high and low byte of the raw height; a third parameter is sent by the
// controller but its meaning is unknown.
func (d Decoder) Decode(f Frame) (Height, error) {
	if f.Command != CmdHeight || len(f.Params) < 2 {
		return Height{}, fmt.Errorf("%w: %s", ErrNotHeight, f)
	}
	raw := uint16(f.Params[0])<<8 | uint16(f.Params[1])
	return d.Convert(raw)
}

// Convert maps a raw height count to meters and applies the range check.
func (d Decoder) Convert(raw uint16) (Height, error) {
	scale, unit := d.scaleFor(raw)
	m := units.Round(scale.OffsetMeters+float64(raw)*scale.MetersPerCount, d.Precision)
	h := Height{Meters: m, Raw: raw, Unit: unit}
	if m < d.MinMeters || m > d.MaxMeters {
		return h, fmt.Errorf("%w: %.4fm outside [%.4f, %.4f] (raw %d)", ErrOutOfRange, m, d.MinMeters, d.MaxMeters, raw)
	}
	return h, nil
}

func (d Decoder) scaleFor(raw uint16) (Scale, RawUnit) {
	if d.Scale != nil {
		return *d.Scale, RawUnitCustom
	}
	switch d.Unit {
	case RawUnitTenthInch:
		return ScaleTenthInch, RawUnitTenthInch
	case RawUnitMillimeter:
		return ScaleMillimeter, RawUnitMillimeter
	}
	if raw < inchThreshold {
		return ScaleTenthInch, RawUnitTenthInch
	}
	return ScaleMillimeter, RawUnitMillimeter
}

// Package units provides shared constants, validation and conversions for
// the length units a desk height can be reported in.
package units

import "math"

// Unit constants
const (
	Meters      = "m"
	Centimeters = "cm"
	Millimeters = "mm"
	Inches      = "in"
)

// Conversion factors to meters.
const (
	MetersPerInch      = 0.0254
	MetersPerTenthInch = 0.00254
	MetersPerMM        = 0.001
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Centimeters, Millimeters, Inches}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, mm, in"
}

// ConvertLength converts a length in meters to the target unit.
// Heights are stored in meters.
func ConvertLength(meters float64, targetUnit string) float64 {
	switch targetUnit {
	case Centimeters:
		return meters * 100
	case Millimeters:
		return meters / MetersPerMM
	case Inches:
		return meters / MetersPerInch
	default:
		return meters // default to meters if unknown unit
	}
}

// ToMeters converts a length expressed in unit to meters.
func ToMeters(v float64, unit string) float64 {
	switch unit {
	case Centimeters:
		return v / 100
	case Millimeters:
		return v * MetersPerMM
	case Inches:
		return v * MetersPerInch
	default:
		return v
	}
}

// Round rounds v to the given number of decimal places. Negative decimals
// are treated as zero.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

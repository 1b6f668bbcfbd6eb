package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// KelvinOffset converts Celsius to Kelvin.
const KelvinOffset = 273.15

// ErrInvalidReading matches every InvalidReadingError.
var ErrInvalidReading = errors.New("invalid reading")

// InvalidReadingError reports the field that made a reading unusable.
type InvalidReadingError struct {
	Field  string
	Reason string
}

func (e *InvalidReadingError) Error() string {
	return fmt.Sprintf("invalid reading: %s %s", e.Field, e.Reason)
}

func (e *InvalidReadingError) Is(target error) bool {
	return target == ErrInvalidReading
}

type MachineType string

const (
	TypeHigh   MachineType = "H"
	TypeMedium MachineType = "M"
	TypeLow    MachineType = "L"
)

// ParseMachineType accepts the single-letter codes and the long names.
// Anything else is returned upper-cased and will encode as "other".
func ParseMachineType(s string) MachineType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H", "HIGH":
		return TypeHigh
	case "M", "MEDIUM":
		return TypeMedium
	case "L", "LOW":
		return TypeLow
	default:
		return MachineType(strings.ToUpper(strings.TrimSpace(s)))
	}
}

type TemperatureUnit string

const (
	Kelvin  TemperatureUnit = "K"
	Celsius TemperatureUnit = "C"
)

// RawReading is telemetry as it arrives at a boundary: any field may be
// absent and temperatures may be in either unit. An empty Unit means Kelvin.
type RawReading struct {
	Type               string          `json:"type,omitempty"`
	AirTemperature     *float64        `json:"air_temperature"`
	ProcessTemperature *float64        `json:"process_temperature"`
	RotationalSpeed    *float64        `json:"rotational_speed"`
	Torque             *float64        `json:"torque"`
	ToolWear           *float64        `json:"tool_wear"`
	Unit               TemperatureUnit `json:"unit,omitempty"`
}

// Reading is a complete reading with temperatures in Kelvin.
type Reading struct {
	Type               MachineType `json:"type"`
	AirTemperature     float64     `json:"air_temperature"`
	ProcessTemperature float64     `json:"process_temperature"`
	RotationalSpeed    float64     `json:"rotational_speed"`
	Torque             float64     `json:"torque"`
	ToolWear           float64     `json:"tool_wear"`
}

// Normalize checks presence of every field and converts temperatures to
// Kelvin. This is the only place a Celsius value is converted.
func (r RawReading) Normalize() (Reading, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"air_temperature", r.AirTemperature},
		{"process_temperature", r.ProcessTemperature},
		{"rotational_speed", r.RotationalSpeed},
		{"torque", r.Torque},
		{"tool_wear", r.ToolWear},
	}
	for _, f := range fields {
		if f.v == nil {
			return Reading{}, &InvalidReadingError{Field: f.name, Reason: "is missing"}
		}
	}

	var offset float64
	switch r.Unit {
	case "", Kelvin:
	case Celsius:
		offset = KelvinOffset
	default:
		return Reading{}, &InvalidReadingError{Field: "unit", Reason: fmt.Sprintf("%q is not K or C", r.Unit)}
	}

	reading := Reading{
		Type:               ParseMachineType(r.Type),
		AirTemperature:     *r.AirTemperature + offset,
		ProcessTemperature: *r.ProcessTemperature + offset,
		RotationalSpeed:    *r.RotationalSpeed,
		Torque:             *r.Torque,
		ToolWear:           *r.ToolWear,
	}
	return reading, reading.Validate()
}

// Validate rejects NaN and infinite values.
func (r Reading) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"air_temperature", r.AirTemperature},
		{"process_temperature", r.ProcessTemperature},
		{"rotational_speed", r.RotationalSpeed},
		{"torque", r.Torque},
		{"tool_wear", r.ToolWear},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) {
			return &InvalidReadingError{Field: c.name, Reason: "is NaN"}
		}
		if math.IsInf(c.v, 0) {
			return &InvalidReadingError{Field: c.name, Reason: "is infinite"}
		}
	}
	return nil
}

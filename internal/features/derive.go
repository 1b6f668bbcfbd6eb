// Package features turns raw machine telemetry into the feature vector the
// failure classifiers were trained on.
package features

import "math"

// rpmToRadPerSec converts revolutions per minute to radians per second.
const rpmToRadPerSec = 2 * math.Pi / 60

// typeEncoding must match the encoding used when the classifiers were fitted.
var typeEncoding = map[MachineType]float64{
	TypeHigh: 0,
	TypeLow:  1,
}

// otherTypeCode is used for M and any unrecognised type.
const otherTypeCode = 2

// Names is the column order shared by every classifier.
var Names = []string{
	"Type",
	"Air_Temp_K",
	"Process_Temp_K",
	"Rot_Speed_RPM",
	"Torque_Nm",
	"Tool_Wear_min",
	"Temp_Diff_K",
	"Power_W",
}

// Vector is the model-ready representation of one reading.
type Vector struct {
	Type                  float64 `json:"type"`
	AirTemperatureK       float64 `json:"air_temperature_k"`
	ProcessTemperatureK   float64 `json:"process_temperature_k"`
	RotationalSpeedRPM    float64 `json:"rotational_speed_rpm"`
	TorqueNm              float64 `json:"torque_nm"`
	ToolWearMin           float64 `json:"tool_wear_min"`
	TemperatureDifference float64 `json:"temperature_difference_k"`
	MechanicalPowerW      float64 `json:"mechanical_power_w"`
}

// EncodeType maps H to 0, L to 1 and everything else to 2.
func EncodeType(t MachineType) float64 {
	if code, ok := typeEncoding[t]; ok {
		return code
	}
	return otherTypeCode
}

// Derive builds the feature vector for a Kelvin reading.
func Derive(r Reading) (Vector, error) {
	if err := r.Validate(); err != nil {
		return Vector{}, err
	}

	return Vector{
		Type:                  EncodeType(r.Type),
		AirTemperatureK:       r.AirTemperature,
		ProcessTemperatureK:   r.ProcessTemperature,
		RotationalSpeedRPM:    r.RotationalSpeed,
		TorqueNm:              r.Torque,
		ToolWearMin:           r.ToolWear,
		TemperatureDifference: r.ProcessTemperature - r.AirTemperature,
		MechanicalPowerW:      r.Torque * r.RotationalSpeed * rpmToRadPerSec,
	}, nil
}

// Values returns the vector in Names order.
func (v Vector) Values() []float64 {
	return []float64{
		v.Type,
		v.AirTemperatureK,
		v.ProcessTemperatureK,
		v.RotationalSpeedRPM,
		v.TorqueNm,
		v.ToolWearMin,
		v.TemperatureDifference,
		v.MechanicalPowerW,
	}
}

// Map returns the vector keyed by column name.
func (v Vector) Map() map[string]float64 {
	values := v.Values()
	m := make(map[string]float64, len(Names))
	for i, name := range Names {
		m[name] = values[i]
	}
	return m
}

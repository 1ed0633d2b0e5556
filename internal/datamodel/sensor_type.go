package datamodel

import "fmt"

// SensorType tags the eight value kinds a series can carry. The numeric
// values match the on-wire fingerprint used by the identity buffer
// (§3.1 of the series identity derivation).
type SensorType uint8

const (
	Integer SensorType = 1
	Numeric SensorType = 20
	Float   SensorType = 30
	String  SensorType = 40
	Boolean SensorType = 50
	Location SensorType = 60
	Json    SensorType = 70
	Blob    SensorType = 80
)

// String renders the canonical name used in the sensors.type column and
// in metric rollups. Json renders upper-case to match the reference
// implementation's naming.
func (t SensorType) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Numeric:
		return "Numeric"
	case Float:
		return "Float"
	case String:
		return "String"
	case Boolean:
		return "Boolean"
	case Location:
		return "Location"
	case Json:
		return "JSON"
	case Blob:
		return "Blob"
	default:
		return fmt.Sprintf("SensorType(%d)", uint8(t))
	}
}

// ParseSensorType maps a stored type name back to its tag.
func ParseSensorType(s string) (SensorType, error) {
	switch s {
	case "Integer":
		return Integer, nil
	case "Numeric":
		return Numeric, nil
	case "Float":
		return Float, nil
	case "String":
		return String, nil
	case "Boolean":
		return Boolean, nil
	case "Location":
		return Location, nil
	case "JSON":
		return Json, nil
	case "Blob":
		return Blob, nil
	default:
		return 0, fmt.Errorf("unknown sensor type %q", s)
	}
}

// IsNumeric reports whether the type belongs to the {Integer, Numeric,
// Float} family used by numeric_only matcher queries.
func (t SensorType) IsNumeric() bool {
	return t == Integer || t == Numeric || t == Float
}

// Package export encodes storage.SensorData into the wire formats C9
// exposes over HTTP (C8, §4.7): SenML JSON, single- and multi-sensor
// CSV, JSONL, and the Arrow-IPC subset internal/arrowipc defines.
//
// Grounded on original_source/src/exporters/{senml,csv,jsonl,arrow}
// for field layout and naming; label-union-and-sort behavior for
// multi-sensor CSV is grounded on SPEC_FULL.md §4.7 directly, since
// the original exports one sensor per call and never merges labels
// across series.
package export

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

// row is one decoded (time, value) pair from a TypedSamples run,
// value-typed per the documented export/import contract: int64,
// float64, decimal.Decimal, string, bool, orb.Point, json.RawMessage,
// or []byte.
type row struct {
	Time  time.Time
	Value any
}

// rowsOf flattens any TypedSamples implementation into (time, value)
// pairs, so every encoder in this package can share one code path
// instead of repeating the eight-way type switch.
func rowsOf(samples datamodel.TypedSamples) ([]row, error) {
	switch s := samples.(type) {
	case datamodel.IntegerSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.NumericSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.FloatSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.StringSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.BooleanSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.LocationSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.JSONSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	case datamodel.BlobSamples:
		out := make([]row, len(s))
		for i, v := range s {
			out[i] = row{v.Time, v.Value}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("export: unsupported sample kind %T", samples)
	}
}

// scalarString renders a value's canonical single-column text form,
// used by CSV and JSONL (location excluded; those formats special-case
// it into two columns/fields).
func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return formatFloat(val), nil
	case decimal.Decimal:
		return val.String(), nil
	case string:
		return val, nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(val), nil
	case json.RawMessage:
		return string(val), nil
	default:
		return "", fmt.Errorf("export: unsupported scalar value %T", v)
	}
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func latLon(v any) (lat, lon float64, err error) {
	p, ok := v.(orb.Point)
	if !ok {
		return 0, 0, fmt.Errorf("export: expected a Location value, got %T", v)
	}
	return p.Y(), p.X(), nil
}

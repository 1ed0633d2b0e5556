package export

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/storage"
)

// SenML renders sd as a SenML Pack JSON array (RFC 8428), grounded on
// original_source/src/exporters/senml.rs: the first record carries the
// base fields (bn = sensor name, bt = the first sample's time in
// seconds, bver = 10, bu = unit name if set) merged with that first
// sample's own value fields; later records carry only t (seconds
// relative to bt) and a value key. Location samples don't fit a
// single value key, so each one renders as two records named "lat"
// and "lon" via SenML's n field, exactly as the original does.
func SenML(sd storage.SensorData) ([]byte, error) {
	out, err := senMLRecords(sd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// MultiSenML renders sds as a single SenML Pack JSON array, each
// sensor's own base-record group (bn/bt/bver/bu) appended in turn, for
// the matcher-driven multi-series query endpoint.
func MultiSenML(sds []storage.SensorData) ([]byte, error) {
	var out []map[string]any
	for _, sd := range sds {
		records, err := senMLRecords(sd)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return json.Marshal(out)
}

func senMLRecords(sd storage.SensorData) ([]map[string]any, error) {
	rows, err := rowsOf(sd.Samples)
	if err != nil {
		return nil, err
	}

	var baseTimeSeconds float64
	if len(rows) > 0 {
		baseTimeSeconds = float64(rows[0].Time.UnixMicro()) / 1e6
	}

	records, err := senMLValueRecords(rows, baseTimeSeconds)
	if err != nil {
		return nil, err
	}

	base := map[string]any{
		"bn":   sd.Sensor.Name,
		"bt":   baseTimeSeconds,
		"bver": 10,
	}
	if sd.Sensor.Unit != nil {
		base["bu"] = sd.Sensor.Unit.Name
	}

	var out []map[string]any
	if len(records) == 0 {
		out = append(out, base)
	} else {
		first := records[0]
		for k, v := range first {
			base[k] = v
		}
		out = append(out, base)
		out = append(out, records[1:]...)
	}
	return out, nil
}

func senMLValueRecords(rows []row, baseTimeSeconds float64) ([]map[string]any, error) {
	var out []map[string]any
	for i, r := range rows {
		t := 0.0
		if i > 0 {
			t = float64(r.Time.UnixMicro())/1e6 - baseTimeSeconds
		}

		switch val := r.Value.(type) {
		case int64:
			out = append(out, map[string]any{"t": t, "v": val})
		case float64:
			out = append(out, map[string]any{"t": t, "v": val})
		case decimal.Decimal:
			f, _ := val.Float64()
			out = append(out, map[string]any{"t": t, "v": f})
		case string:
			out = append(out, map[string]any{"t": t, "vs": val})
		case bool:
			out = append(out, map[string]any{"t": t, "vb": val})
		case []byte:
			out = append(out, map[string]any{"t": t, "vd": base64URLNoPad(val)})
		case json.RawMessage:
			out = append(out, map[string]any{"t": t, "vs": string(val)})
		default:
			lat, lon, err := latLon(val)
			if err != nil {
				return nil, fmt.Errorf("senml: row %d: %w", i, err)
			}
			out = append(out,
				map[string]any{"t": t, "n": "lat", "v": lat},
				map[string]any{"t": t, "n": "lon", "v": lon},
			)
		}
	}
	return out, nil
}

func base64URLNoPad(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

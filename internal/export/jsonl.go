package export

import (
	"bytes"
	"encoding/json"

	"github.com/sintef/sensapp-go/internal/storage"
)

// JSONL renders sd as newline-delimited JSON: one object per sample
// carrying sensor_uuid, sensor_name, timestamp, type, a labels object,
// and either value or latitude/longitude for a Location series (§4.7).
func JSONL(sd storage.SensorData) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONLTo(&buf, sd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MultiJSONL renders sds as newline-delimited JSON, each sensor's
// samples in turn, for the matcher-driven multi-series query endpoint.
func MultiJSONL(sds []storage.SensorData) ([]byte, error) {
	var buf bytes.Buffer
	for _, sd := range sds {
		if err := writeJSONLTo(&buf, sd); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeJSONLTo(buf *bytes.Buffer, sd storage.SensorData) error {
	rows, err := rowsOf(sd.Samples)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(sd.Sensor.Labels))
	for _, l := range sd.Sensor.Labels {
		labels[l.Key] = l.Value
	}

	enc := json.NewEncoder(buf)
	for _, r := range rows {
		obj := map[string]any{
			"sensor_uuid": sd.Sensor.UUID.String(),
			"sensor_name": sd.Sensor.Name,
			"timestamp":   rfc3339(r.Time),
			"type":        sd.Sensor.Type.String(),
			"labels":      labels,
		}
		if lat, lon, lerr := latLon(r.Value); lerr == nil {
			obj["latitude"] = lat
			obj["longitude"] = lon
		} else {
			obj["value"] = jsonValue(r.Value)
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}

// jsonValue renders a sample value as the JSON shape a reader would
// expect: numbers and booleans stay native, a Json sample's raw
// message is embedded verbatim, and a Blob is base64-encoded text
// (encoding/json's own []byte handling, reused via scalarString so
// both CSV and JSONL agree on the encoding).
func jsonValue(v any) any {
	switch val := v.(type) {
	case int64, float64, bool, json.RawMessage, string:
		return val
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil
		}
		return s
	}
}

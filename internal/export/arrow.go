package export

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/arrowipc"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

// Arrow renders sd as a single Arrow-IPC-subset record batch
// (internal/arrowipc), mirroring
// original_source/src/exporters/arrow/mod.rs's column layout:
// timestamp, value, sensor_id, sensor_name.
func Arrow(sd storage.SensorData) ([]byte, error) {
	rows, err := arrowRowsOf(sd)
	if err != nil {
		return nil, err
	}
	return arrowipc.Bytes(sd.Sensor.Type, rows)
}

// MultiArrow renders sds into a single Arrow-IPC-subset record batch.
// Every matched series must share one SensorType: arrowipc's framing
// carries one shared value kind per file, so a selector matching
// series of different types is rejected rather than silently
// truncating or reinterpreting bytes.
func MultiArrow(sds []storage.SensorData) ([]byte, error) {
	if len(sds) == 0 {
		return arrowipc.Bytes(datamodel.Float, nil)
	}

	kind := sds[0].Sensor.Type
	var rows []arrowipc.Row
	for _, sd := range sds {
		if sd.Sensor.Type != kind {
			return nil, datamodel.NewError(datamodel.InvalidDataFormat,
				"export: arrow format requires a single sensor type, got %s and %s", kind, sd.Sensor.Type)
		}
		r, err := arrowRowsOf(sd)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}
	return arrowipc.Bytes(kind, rows)
}

func arrowRowsOf(sd storage.SensorData) ([]arrowipc.Row, error) {
	rows, err := rowsOf(sd.Samples)
	if err != nil {
		return nil, err
	}

	out := make([]arrowipc.Row, len(rows))
	for i, r := range rows {
		v, err := arrowValue(r.Value)
		if err != nil {
			return nil, err
		}
		out[i] = arrowipc.Row{
			Time:       r.Time,
			SensorID:   sd.Sensor.UUID,
			SensorName: sd.Sensor.Name,
			Value:      v,
		}
	}
	return out, nil
}

func arrowValue(v any) (any, error) {
	switch val := v.(type) {
	case int64, float64, decimal.Decimal, string, bool, []byte:
		return val, nil
	case json.RawMessage:
		return string(val), nil
	case orb.Point:
		return arrowipc.LatLon{Lat: val.Y(), Lon: val.X()}, nil
	default:
		return nil, fmt.Errorf("export: unsupported arrow value %T", v)
	}
}

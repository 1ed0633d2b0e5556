// Package arrow ingests the Arrow-IPC-subset files written by
// internal/arrowipc (C7.5, §4.6): one record batch carrying a
// timestamp column, a single typed value column shared by every row,
// and sensor_id/sensor_name columns. Out of strict scope per §1, but
// given a minimal grounded implementation per SPEC_FULL.md's DOMAIN STACK.
//
// Grounded on original_source/src/importers/arrow.rs's column layout
// (timestamp, value, sensor_id, sensor_name) and find_column_index/
// convert_record_batch_to_sensors shape. One deliberate improvement
// over the original: its extract_sensor_id/extract_sensor_name only
// ever look at row 0 and silently assign every row in the batch to
// that single sensor, so a batch mixing rows for several sensors gets
// mis-tagged. This port groups rows by their own (sensor_id,
// sensor_name) pair instead, which costs nothing when a batch really
// does hold one sensor and fixes the multi-sensor case.
package arrow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/arrowipc"
	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Ingest decodes a single Arrow-IPC-subset record batch from r,
// groups its rows by sensor identity, and feeds each group into bb.
func Ingest(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher) error {
	f, err := arrowipc.ReadFile(r)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "arrow: decode record batch")
	}

	type group struct {
		id     uuid.UUID
		name   string
		values []arrowipc.Row
	}
	groups := map[uuid.UUID]*group{}
	var order []uuid.UUID

	for _, row := range f.Rows {
		g, ok := groups[row.SensorID]
		if !ok {
			g = &group{id: row.SensorID, name: row.SensorName}
			groups[row.SensorID] = g
			order = append(order, row.SensorID)
		}
		g.values = append(g.values, row)
	}

	for _, id := range order {
		g := groups[id]
		samples, err := buildSamples(f.Kind, g.values)
		if err != nil {
			return fmt.Errorf("arrow: sensor %q: %w", g.name, err)
		}
		sensor := datamodel.NewSensor(g.id, g.name, f.Kind, nil, nil)
		if err := bb.Add(ctx, pub, sensor, samples); err != nil {
			return err
		}
	}
	return nil
}

func buildSamples(kind datamodel.SensorType, rows []arrowipc.Row) (datamodel.TypedSamples, error) {
	switch kind {
	case datamodel.Integer:
		out := make(datamodel.IntegerSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[int64]{Time: r.Time, Value: r.Value.(int64)})
		}
		return out, nil
	case datamodel.Float:
		out := make(datamodel.FloatSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[float64]{Time: r.Time, Value: r.Value.(float64)})
		}
		return out, nil
	case datamodel.Numeric:
		out := make(datamodel.NumericSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[decimal.Decimal]{Time: r.Time, Value: r.Value.(decimal.Decimal)})
		}
		return out, nil
	case datamodel.String:
		out := make(datamodel.StringSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[string]{Time: r.Time, Value: r.Value.(string)})
		}
		return out, nil
	case datamodel.Boolean:
		out := make(datamodel.BooleanSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[bool]{Time: r.Time, Value: r.Value.(bool)})
		}
		return out, nil
	case datamodel.Location:
		out := make(datamodel.LocationSamples, 0, len(rows))
		for _, r := range rows {
			ll := r.Value.(arrowipc.LatLon)
			out = append(out, datamodel.Sample[orb.Point]{Time: r.Time, Value: orb.Point{ll.Lon, ll.Lat}})
		}
		return out, nil
	case datamodel.Json:
		out := make(datamodel.JSONSamples, 0, len(rows))
		for _, r := range rows {
			raw := []byte(r.Value.(string))
			if !json.Valid(raw) {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "invalid json value %q", raw)
			}
			out = append(out, datamodel.Sample[json.RawMessage]{Time: r.Time, Value: json.RawMessage(raw)})
		}
		return out, nil
	case datamodel.Blob:
		out := make(datamodel.BlobSamples, 0, len(rows))
		for _, r := range rows {
			out = append(out, datamodel.Sample[[]byte]{Time: r.Time, Value: r.Value.([]byte)})
		}
		return out, nil
	default:
		return nil, datamodel.NewError(datamodel.InvalidDataFormat, "arrow: unsupported value kind %v", kind)
	}
}

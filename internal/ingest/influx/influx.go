// Package influx ingests InfluxDB line-protocol bodies (C7.1, §4.6),
// grounded on ClusterCockpit-cc-backend's pkg/metricstore/lineprotocol.go
// use of influxdata/line-protocol/v2: each decoded field becomes its
// own series named "<measurement>_<field>", tags become labels, and
// the field's line-protocol value kind picks the sample kind.
package influx

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Ingest decodes every line in r and feeds the resulting samples into
// bb, publishing through pub as bb's threshold is crossed. It does not
// call SendWhatIsLeft; callers flush once after ingestion completes.
func Ingest(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "influx: read body")
	}

	dec := lineprotocol.NewDecoderWithBytes(data)
	now := time.Now().UTC()

	for dec.Next() {
		measurement, err := dec.Measurement()
		if err != nil {
			return datamodel.WrapError(datamodel.InvalidDataFormat, err, "influx: measurement")
		}
		name := string(measurement)

		var labels []datamodel.Label
		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return datamodel.WrapError(datamodel.InvalidDataFormat, err, "influx: tag")
			}
			if key == nil {
				break
			}
			labels = append(labels, datamodel.Label{Key: string(key), Value: string(val)})
		}

		// The decoder only moves forward, so the fields are read before
		// the timestamp that follows them on the line.
		type field struct {
			key string
			val lineprotocol.Value
		}
		var fields []field
		for {
			key, val, err := dec.NextField()
			if err != nil {
				return datamodel.WrapError(datamodel.InvalidDataFormat, err, "influx: field")
			}
			if key == nil {
				break
			}
			if val.Kind() == lineprotocol.String {
				val, _ = lineprotocol.StringValue(strings.Clone(val.StringV()))
			}
			fields = append(fields, field{key: string(key), val: val})
		}

		ts, err := dec.Time(lineprotocol.Nanosecond, now)
		if err != nil {
			return datamodel.WrapError(datamodel.InvalidDataFormat, err, "influx: timestamp")
		}

		for _, f := range fields {
			if err := addField(ctx, bb, pub, name+"_"+f.key, labels, ts, f.val); err != nil {
				return err
			}
		}
	}
	return nil
}

func addField(ctx context.Context, bb *batch.BatchBuilder, pub batch.Publisher, name string, labels []datamodel.Label, ts time.Time, val lineprotocol.Value) error {
	var kind datamodel.SensorType
	var samples datamodel.TypedSamples

	switch val.Kind() {
	case lineprotocol.Int:
		kind = datamodel.Integer
		samples = datamodel.IntegerSamples{{Time: ts, Value: val.IntV()}}
	case lineprotocol.Uint:
		kind = datamodel.Integer
		samples = datamodel.IntegerSamples{{Time: ts, Value: int64(val.UintV())}}
	case lineprotocol.Bool:
		kind = datamodel.Boolean
		samples = datamodel.BooleanSamples{{Time: ts, Value: val.BoolV()}}
	case lineprotocol.String:
		kind = datamodel.String
		samples = datamodel.StringSamples{{Time: ts, Value: val.StringV()}}
	case lineprotocol.Float:
		kind = datamodel.Float
		samples = datamodel.FloatSamples{{Time: ts, Value: val.FloatV()}}
	default:
		return datamodel.NewError(datamodel.InvalidDataFormat, "influx: unsupported field value kind for %q", name)
	}

	sensor, err := datamodel.NewSensorWithoutUUID(name, kind, nil, labels)
	if err != nil {
		return fmt.Errorf("influx: build sensor %q: %w", name, err)
	}
	return bb.Add(ctx, pub, sensor, samples)
}

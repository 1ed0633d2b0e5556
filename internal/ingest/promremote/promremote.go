// Package promremote ingests Prometheus remote-write requests (C7.2,
// §4.6): a snappy-framed protobuf WriteRequest, one series per
// (metric name from the __name__ label, remaining labels), Float
// samples, milliseconds→microsecond timestamp conversion.
//
// No generated prompb Go package is wired into this module (per
// DOMAIN STACK, only google.golang.org/protobuf's low-level
// encoding/protowire is), so the WriteRequest/TimeSeries/Label/Sample
// messages are walked field-by-field with protowire directly — the
// same wire layout other_examples' grafana-xk6-client-prometheus
// -remote write-side code produces (field 1 timeseries, nested field
// 1 labels / field 2 samples, Label{name=1,value=2}, Sample{value=1
// fixed64, timestamp=2 varint}).
package promremote

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

type wireLabel struct {
	name, value string
}

type wireSample struct {
	value     float64
	timestamp int64 // milliseconds since epoch
}

type wireSeries struct {
	labels  []wireLabel
	samples []wireSample
}

// Ingest decompresses and decodes a Prometheus remote-write body from
// r and feeds each (series, sample) pair into bb as a Float sample of
// the series named by its __name__ label, with its remaining labels
// attached.
func Ingest(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher) error {
	framed, err := io.ReadAll(r)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "promremote: read body")
	}
	data, err := snappy.Decode(nil, framed)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "promremote: snappy decode")
	}

	series, err := decodeWriteRequest(data)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "promremote: decode protobuf")
	}

	for _, ts := range series {
		name := ""
		var labels []datamodel.Label
		for _, l := range ts.labels {
			if l.name == "__name__" {
				name = l.value
				continue
			}
			labels = append(labels, datamodel.Label{Key: l.name, Value: l.value})
		}
		if name == "" {
			return datamodel.NewError(datamodel.InvalidDataFormat, "promremote: series has no __name__ label")
		}

		sensor, err := datamodel.NewSensorWithoutUUID(name, datamodel.Float, nil, labels)
		if err != nil {
			return fmt.Errorf("promremote: build sensor %q: %w", name, err)
		}

		samples := make(datamodel.FloatSamples, 0, len(ts.samples))
		for _, s := range ts.samples {
			samples = append(samples, datamodel.Sample[float64]{
				Time:  datamodel.FromMicros(s.timestamp * 1000),
				Value: s.value,
			})
		}
		if err := bb.Add(ctx, pub, sensor, samples); err != nil {
			return err
		}
	}
	return nil
}

func decodeWriteRequest(data []byte) ([]wireSeries, error) {
	var result []wireSeries
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			ts, err := decodeTimeSeries(v)
			if err != nil {
				return nil, err
			}
			result = append(result, ts)
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return result, nil
}

func decodeTimeSeries(data []byte) (wireSeries, error) {
	var ts wireSeries
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireSeries{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType: // Label
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireSeries{}, protowire.ParseError(n)
			}
			label, err := decodeLabel(v)
			if err != nil {
				return wireSeries{}, err
			}
			ts.labels = append(ts.labels, label)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType: // Sample
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireSeries{}, protowire.ParseError(n)
			}
			sample, err := decodeSample(v)
			if err != nil {
				return wireSeries{}, err
			}
			ts.samples = append(ts.samples, sample)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireSeries{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return ts, nil
}

func decodeLabel(data []byte) (wireLabel, error) {
	var l wireLabel
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireLabel{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireLabel{}, protowire.ParseError(n)
			}
			l.name = string(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireLabel{}, protowire.ParseError(n)
			}
			l.value = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireLabel{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return l, nil
}

func decodeSample(data []byte) (wireSample, error) {
	var s wireSample
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireSample{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return wireSample{}, protowire.ParseError(n)
			}
			s.value = math.Float64frombits(v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireSample{}, protowire.ParseError(n)
			}
			s.timestamp = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireSample{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return s, nil
}

// Package senml ingests SenML JSON bodies (RFC 8428, C7.4, §4.6):
// a flat JSON array of records that each may carry a base name (bn),
// base time (bt), an individual name (n) appended to the running base
// name, a relative time (t) added to the running base time, and
// exactly one of v (integer or float), vs (string), vb (boolean), or
// vd (base64url-no-pad blob) as its value.
//
// Grounded on original_source/src/importers/senml.rs: bn/bt persist
// across records until overwritten, records are grouped by their
// resolved name, and each group's sample kind is inferred once from
// its first record.
package senml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

type record struct {
	obj map[string]json.RawMessage
	// resolved at parse time, after the running bn/bt have been folded in
	name string
	time time.Time
}

// Ingest decodes a SenML JSON array from r, groups its records by
// resolved sensor name, infers each group's sample kind from its
// first record, and feeds the resulting series into bb.
//
// Unlike the original importer, sensors are identified by
// NewSensorWithoutUUID's deterministic name+type+unit+labels hash
// rather than a fresh random UUID per upload, so republishing the
// same SenML payload updates the same series instead of minting a new
// one each time (see DESIGN.md).
func Ingest(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "senml: read body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "senml: SenML body must be a JSON array of objects")
	}
	if len(raw) == 0 {
		return nil
	}

	var (
		baseName     string
		baseTime     float64
		haveBaseTime bool
	)

	type group struct {
		name    string
		records []record
	}
	groups := map[string]*group{}
	var order []string

	for _, obj := range raw {
		if bn, ok := obj["bn"]; ok {
			var s string
			if err := json.Unmarshal(bn, &s); err == nil {
				baseName = s
			}
		}
		if bt, ok := obj["bt"]; ok {
			var f float64
			if err := json.Unmarshal(bt, &f); err == nil {
				baseTime = f
				haveBaseTime = true
			}
		}

		name := baseName
		if n, ok := obj["n"]; ok {
			var s string
			if err := json.Unmarshal(n, &s); err == nil {
				name = baseName + s
			}
		}
		if name == "" {
			return datamodel.NewError(datamodel.InvalidDataFormat, "senml: record must resolve to a non-empty name (bn or n)")
		}

		ts, err := recordTime(obj, baseTime, haveBaseTime)
		if err != nil {
			return err
		}

		g, ok := groups[name]
		if !ok {
			g = &group{name: name}
			groups[name] = g
			order = append(order, name)
		}
		g.records = append(g.records, record{obj: obj, name: name, time: ts})
	}

	for _, name := range order {
		g := groups[name]
		kind, err := inferKind(g.records[0].obj)
		if err != nil {
			return fmt.Errorf("senml: sensor %q: %w", name, err)
		}

		samples, err := buildSamples(kind, g.records)
		if err != nil {
			return fmt.Errorf("senml: sensor %q: %w", name, err)
		}

		sensor, err := datamodel.NewSensorWithoutUUID(name, kind, nil, nil)
		if err != nil {
			return fmt.Errorf("senml: build sensor %q: %w", name, err)
		}
		if err := bb.Add(ctx, pub, sensor, samples); err != nil {
			return err
		}
	}
	return nil
}

func recordTime(obj map[string]json.RawMessage, baseTime float64, haveBaseTime bool) (time.Time, error) {
	seconds := baseTime
	if t, ok := obj["t"]; ok {
		var rel float64
		if err := json.Unmarshal(t, &rel); err != nil {
			return time.Time{}, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid relative time %q", string(t))
		}
		seconds = baseTime + rel
	} else if !haveBaseTime {
		return time.Now().UTC(), nil
	}
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC(), nil
}

func inferKind(obj map[string]json.RawMessage) (datamodel.SensorType, error) {
	if v, ok := obj["v"]; ok {
		var num json.Number
		if err := json.Unmarshal(v, &num); err != nil {
			return 0, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid numeric value %q", string(v))
		}
		if _, err := num.Int64(); err == nil {
			return datamodel.Integer, nil
		}
		return datamodel.Float, nil
	}
	if _, ok := obj["vs"]; ok {
		return datamodel.String, nil
	}
	if _, ok := obj["vb"]; ok {
		return datamodel.Boolean, nil
	}
	if _, ok := obj["vd"]; ok {
		return datamodel.Blob, nil
	}
	return 0, datamodel.NewError(datamodel.InvalidDataFormat, "senml: record has no value (v, vs, vb or vd)")
}

func buildSamples(kind datamodel.SensorType, records []record) (datamodel.TypedSamples, error) {
	switch kind {
	case datamodel.Integer:
		out := make(datamodel.IntegerSamples, 0, len(records))
		for _, r := range records {
			num, err := numberField(r.obj, "v")
			if err != nil {
				return nil, err
			}
			v, err := num.Int64()
			if err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid integer value %q", num.String())
			}
			out = append(out, datamodel.Sample[int64]{Time: r.time, Value: v})
		}
		return out, nil
	case datamodel.Float:
		out := make(datamodel.FloatSamples, 0, len(records))
		for _, r := range records {
			num, err := numberField(r.obj, "v")
			if err != nil {
				return nil, err
			}
			v, err := num.Float64()
			if err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid float value %q", num.String())
			}
			out = append(out, datamodel.Sample[float64]{Time: r.time, Value: v})
		}
		return out, nil
	case datamodel.String:
		out := make(datamodel.StringSamples, 0, len(records))
		for _, r := range records {
			raw, ok := r.obj["vs"]
			if !ok {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: missing vs value")
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid vs value %q", string(raw))
			}
			out = append(out, datamodel.Sample[string]{Time: r.time, Value: s})
		}
		return out, nil
	case datamodel.Boolean:
		out := make(datamodel.BooleanSamples, 0, len(records))
		for _, r := range records {
			raw, ok := r.obj["vb"]
			if !ok {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: missing vb value")
			}
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid vb value %q", string(raw))
			}
			out = append(out, datamodel.Sample[bool]{Time: r.time, Value: b})
		}
		return out, nil
	case datamodel.Blob:
		out := make(datamodel.BlobSamples, 0, len(records))
		for _, r := range records {
			raw, ok := r.obj["vd"]
			if !ok {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: missing vd value")
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid vd value %q", string(raw))
			}
			b, err := base64.RawURLEncoding.DecodeString(s)
			if err != nil {
				return nil, datamodel.WrapError(datamodel.InvalidDataFormat, err, "senml: decode vd")
			}
			out = append(out, datamodel.Sample[[]byte]{Time: r.time, Value: b})
		}
		return out, nil
	default:
		return nil, datamodel.NewError(datamodel.InvalidDataFormat, "senml: unsupported sensor kind %v for import", kind)
	}
}

func numberField(obj map[string]json.RawMessage, key string) (json.Number, error) {
	raw, ok := obj[key]
	if !ok {
		return "", datamodel.NewError(datamodel.InvalidDataFormat, "senml: missing %s value", key)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", datamodel.NewError(datamodel.InvalidDataFormat, "senml: invalid %s value %q", key, string(raw))
	}
	return num, nil
}

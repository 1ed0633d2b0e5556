// Package csv ingests CSV uploads (C7.3, §4.6): either a long/tidy
// table (`timestamp,value[,labels...]` for a single named sensor, or
// `timestamp,sensor_name|sensor_uuid,value[,labels...]` grouping rows
// by that column) or a wide table (`timestamp,<sensor1>,<sensor2>,...`
// with one column per series). Column type is inferred by sampling up
// to maxInferenceRows rows per series, trying int, then float, then
// bool, falling back to string.
//
// Grounded on original_source/src/importers/csv_strict_tests.rs for
// the long-format column names (sensor_name / sensor_uuid) and on
// SPEC_FULL.md's §4.6/§6.2 description of the wide form and the
// max_inference_rows knob, neither of which the original strict-mode
// importer's surviving test file alone documents.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// DefaultMaxInferenceRows bounds how many rows of a series are sampled
// to infer its value kind when no explicit type is given.
const DefaultMaxInferenceRows = 128

const (
	colTimestamp  = "timestamp"
	colDatetime   = "datetime"
	colValue      = "value"
	colSensorName = "sensor_name"
	colSensorUUID = "sensor_uuid"
	colType       = "type"
)

// Ingest parses a CSV body from r and feeds the resulting series into
// bb. defaultSensorName names the single series produced by a
// single-sensor long table (`timestamp,value[,labels...]`, no
// sensor_name/sensor_uuid column); it is ignored for wide and
// multi-sensor long tables. maxInferenceRows <= 0 uses
// DefaultMaxInferenceRows.
func Ingest(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher, defaultSensorName string, maxInferenceRows int) error {
	if maxInferenceRows <= 0 {
		maxInferenceRows = DefaultMaxInferenceRows
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return datamodel.WrapError(datamodel.InvalidDataFormat, err, "csv: read body")
	}
	if len(rows) == 0 {
		return datamodel.NewError(datamodel.InvalidDataFormat, "csv: empty body, expected a header row")
	}

	header := rows[0]
	data := rows[1:]
	idx := columnIndex(header)

	tsCol, ok := idx[colTimestamp]
	if !ok {
		tsCol, ok = idx[colDatetime]
	}
	if !ok {
		return datamodel.NewError(datamodel.InvalidDataFormat, "csv: header must have a timestamp or datetime column")
	}

	if _, hasValue := idx[colValue]; hasValue {
		return ingestLong(ctx, bb, pub, header, idx, data, tsCol, defaultSensorName, maxInferenceRows)
	}
	return ingestWide(ctx, bb, pub, header, data, tsCol, maxInferenceRows)
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// ingestLong handles `timestamp,value[,labels...]` (single sensor,
// named by defaultSensorName) and
// `timestamp,sensor_name|sensor_uuid,value[,labels...]` (grouped by
// that column).
func ingestLong(ctx context.Context, bb *batch.BatchBuilder, pub batch.Publisher, header []string, idx map[string]int, data [][]string, tsCol int, defaultSensorName string, maxInferenceRows int) error {
	valueCol := idx[colValue]
	nameCol, hasName := idx[colSensorName]
	uuidCol, hasUUID := idx[colSensorUUID]

	labelCols := map[int]string{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if i == tsCol || i == valueCol || key == colType {
			continue
		}
		if (hasName && i == nameCol) || (hasUUID && i == uuidCol) {
			continue
		}
		labelCols[i] = h
	}

	type group struct {
		name       string
		explicitID *uuid.UUID
		values     []string
		times      []time.Time
		labels     []datamodel.Label
	}
	groups := map[string]*group{}
	var order []string

	for rowNum, row := range data {
		ts, err := parseTimestamp(fieldAt(row, tsCol))
		if err != nil {
			return fmt.Errorf("csv: row %d: %w", rowNum+1, err)
		}

		var key, name string
		var explicitID *uuid.UUID
		switch {
		case hasUUID:
			raw := fieldAt(row, uuidCol)
			id, err := uuid.Parse(raw)
			if err != nil {
				return datamodel.NewError(datamodel.InvalidDataFormat, "csv: row %d: invalid sensor_uuid %q", rowNum+1, raw)
			}
			explicitID = &id
			key, name = raw, raw
		case hasName:
			name = fieldAt(row, nameCol)
			key = name
		default:
			if defaultSensorName == "" {
				return datamodel.NewError(datamodel.InvalidDataFormat, "csv: header has no sensor_name/sensor_uuid column and no default sensor name was supplied")
			}
			name = defaultSensorName
			key = name
		}
		if key == "" {
			return datamodel.NewError(datamodel.InvalidDataFormat, "csv: row %d: empty sensor identity", rowNum+1)
		}

		g, ok := groups[key]
		if !ok {
			g = &group{name: name, explicitID: explicitID}
			groups[key] = g
			order = append(order, key)
			for i, label := range labelCols {
				g.labels = append(g.labels, datamodel.Label{Key: label, Value: fieldAt(row, i)})
			}
		}
		g.times = append(g.times, ts)
		g.values = append(g.values, fieldAt(row, valueCol))
	}

	for _, key := range order {
		g := groups[key]
		kind := inferKind(g.values, maxInferenceRows)
		samples, err := buildSamples(kind, g.times, g.values)
		if err != nil {
			return fmt.Errorf("csv: sensor %q: %w", g.name, err)
		}

		var sensor datamodel.Sensor
		if g.explicitID != nil {
			sensor = datamodel.NewSensor(*g.explicitID, g.name, kind, nil, g.labels)
		} else {
			sensor, err = datamodel.NewSensorWithoutUUID(g.name, kind, nil, g.labels)
			if err != nil {
				return fmt.Errorf("csv: build sensor %q: %w", g.name, err)
			}
		}
		if err := bb.Add(ctx, pub, sensor, samples); err != nil {
			return err
		}
	}
	return nil
}

// ingestWide handles `timestamp,<sensor1>,<sensor2>,...`: every
// non-timestamp column is its own series named after the header cell.
func ingestWide(ctx context.Context, bb *batch.BatchBuilder, pub batch.Publisher, header []string, data [][]string, tsCol int, maxInferenceRows int) error {
	times := make([]time.Time, len(data))
	for rowNum, row := range data {
		ts, err := parseTimestamp(fieldAt(row, tsCol))
		if err != nil {
			return fmt.Errorf("csv: row %d: %w", rowNum+1, err)
		}
		times[rowNum] = ts
	}

	for col, name := range header {
		if col == tsCol || strings.TrimSpace(name) == "" {
			continue
		}

		values := make([]string, len(data))
		for rowNum, row := range data {
			values[rowNum] = fieldAt(row, col)
		}

		kind := inferKind(values, maxInferenceRows)
		samples, err := buildSamples(kind, times, values)
		if err != nil {
			return fmt.Errorf("csv: sensor %q: %w", name, err)
		}
		sensor, err := datamodel.NewSensorWithoutUUID(name, kind, nil, nil)
		if err != nil {
			return fmt.Errorf("csv: build sensor %q: %w", name, err)
		}
		if err := bb.Add(ctx, pub, sensor, samples); err != nil {
			return err
		}
	}
	return nil
}

func fieldAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, datamodel.NewError(datamodel.InvalidDataFormat, "csv: empty timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(f)
		frac := f - float64(whole)
		return time.Unix(whole, int64(frac*1e9)).UTC(), nil
	}
	return time.Time{}, datamodel.NewError(datamodel.InvalidDataFormat, "csv: invalid timestamp %q", s)
}

// inferKind samples up to maxRows non-empty values and picks the
// narrowest kind that parses all of them: int, then float, then bool,
// falling back to string.
func inferKind(values []string, maxRows int) datamodel.SensorType {
	n := len(values)
	if maxRows > 0 && maxRows < n {
		n = maxRows
	}

	isInt, isFloat, isBool := true, true, true
	sawAny := false
	for i := 0; i < n; i++ {
		v := strings.TrimSpace(values[i])
		if v == "" {
			continue
		}
		sawAny = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, err := strconv.ParseBool(v); err != nil {
				isBool = false
			}
		}
	}
	if !sawAny {
		return datamodel.String
	}
	switch {
	case isInt:
		return datamodel.Integer
	case isFloat:
		return datamodel.Float
	case isBool:
		return datamodel.Boolean
	default:
		return datamodel.String
	}
}

func buildSamples(kind datamodel.SensorType, times []time.Time, values []string) (datamodel.TypedSamples, error) {
	switch kind {
	case datamodel.Integer:
		out := make(datamodel.IntegerSamples, 0, len(values))
		for i, v := range values {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "invalid integer value %q", v)
			}
			out = append(out, datamodel.Sample[int64]{Time: times[i], Value: n})
		}
		return out, nil
	case datamodel.Float:
		out := make(datamodel.FloatSamples, 0, len(values))
		for i, v := range values {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "invalid float value %q", v)
			}
			out = append(out, datamodel.Sample[float64]{Time: times[i], Value: f})
		}
		return out, nil
	case datamodel.Boolean:
		out := make(datamodel.BooleanSamples, 0, len(values))
		for i, v := range values {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, datamodel.NewError(datamodel.InvalidDataFormat, "invalid boolean value %q", v)
			}
			out = append(out, datamodel.Sample[bool]{Time: times[i], Value: b})
		}
		return out, nil
	default:
		out := make(datamodel.StringSamples, 0, len(values))
		for i, v := range values {
			out = append(out, datamodel.Sample[string]{Time: times[i], Value: v})
		}
		return out, nil
	}
}

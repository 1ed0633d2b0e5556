package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

type sensorRow struct {
	id     int64
	sensor datamodel.Sensor
}

// allSensors loads every sensor row with its unit and labels resolved,
// ordered by UUID ascending (§4.4).
func (s *Storage) allSensors(ctx context.Context, metricFilter *string) ([]sensorRow, error) {
	query := `SELECT s.sensor_id, s.uuid, s.name, s.type, u.name, u.description
		FROM sensors s LEFT JOIN units u ON u.id = s.unit`
	var args []any
	if metricFilter != nil {
		query += " WHERE s.name = ?"
		args = append(args, *metricFilter)
	}
	query += " ORDER BY s.uuid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	defer rows.Close()

	var out []sensorRow
	for rows.Next() {
		var (
			id                int64
			rawUUID, name, kd string
			unitName, unitDsc sql.NullString
		)
		if err := rows.Scan(&id, &rawUUID, &name, &kd, &unitName, &unitDsc); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		parsedUUID, err := uuid.Parse(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("parse sensor uuid %q: %w", rawUUID, err)
		}
		sensorType, err := datamodel.ParseSensorType(kd)
		if err != nil {
			return nil, fmt.Errorf("parse sensor type for %s: %w", name, err)
		}
		var unit *datamodel.Unit
		if unitName.Valid {
			var description *string
			if unitDsc.Valid {
				d := unitDsc.String
				description = &d
			}
			u := datamodel.NewUnit(unitName.String, description)
			unit = &u
		}
		out = append(out, sensorRow{id: id, sensor: datamodel.Sensor{
			UUID: parsedUUID, Name: name, Type: sensorType, Unit: unit,
		}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachLabels(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) attachLabels(ctx context.Context, rowsBySensor []sensorRow) error {
	if len(rowsBySensor) == 0 {
		return nil
	}
	byID := make(map[int64]*sensorRow, len(rowsBySensor))
	for i := range rowsBySensor {
		byID[rowsBySensor[i].id] = &rowsBySensor[i]
	}

	rows, err := s.db.QueryContext(ctx, `SELECT l.sensor_id, n.name, d.description
		FROM labels l
		JOIN labels_name_dictionary n ON n.id = l.name_id
		JOIN labels_description_dictionary d ON d.id = l.description_id`)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sensorID int64
		var key, value string
		if err := rows.Scan(&sensorID, &key, &value); err != nil {
			return fmt.Errorf("scan label: %w", err)
		}
		if row, ok := byID[sensorID]; ok {
			row.sensor.Labels = append(row.sensor.Labels, datamodel.Label{Key: key, Value: value})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range rowsBySensor {
		labels := rowsBySensor[i].sensor.Labels
		sort.Slice(labels, func(a, b int) bool {
			if labels[a].Key != labels[b].Key {
				return labels[a].Key < labels[b].Key
			}
			return labels[a].Value < labels[b].Value
		})
	}
	return nil
}

// ListSeries implements storage.Storage.
func (s *Storage) ListSeries(ctx context.Context, metricFilter *string) ([]datamodel.Sensor, error) {
	rows, err := s.allSensors(ctx, metricFilter)
	if err != nil {
		return nil, err
	}
	out := make([]datamodel.Sensor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.sensor)
	}
	return out, nil
}

// ListMetrics implements storage.Storage: one rollup per distinct
// sensor name, unioning the label keys seen across that name's series.
func (s *Storage) ListMetrics(ctx context.Context) ([]storage.Metric, error) {
	rows, err := s.allSensors(ctx, nil)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*storage.Metric)
	var order []string
	labelKeySeen := make(map[string]map[string]bool)
	for _, r := range rows {
		m, ok := byName[r.sensor.Name]
		if !ok {
			m = &storage.Metric{Name: r.sensor.Name, Type: r.sensor.Type, Unit: r.sensor.Unit}
			byName[r.sensor.Name] = m
			labelKeySeen[r.sensor.Name] = make(map[string]bool)
			order = append(order, r.sensor.Name)
		}
		m.SeriesCount++
		for _, l := range r.sensor.Labels {
			if !labelKeySeen[r.sensor.Name][l.Key] {
				labelKeySeen[r.sensor.Name][l.Key] = true
				m.LabelKeys = append(m.LabelKeys, l.Key)
			}
		}
	}

	out := make([]storage.Metric, 0, len(order))
	for _, name := range order {
		sort.Strings(byName[name].LabelKeys)
		out = append(out, *byName[name])
	}
	return out, nil
}

// QuerySensorData implements storage.Storage.
func (s *Storage) QuerySensorData(ctx context.Context, id uuid.UUID, start, end *time.Time, limit *int64) (*storage.SensorData, error) {
	var sensorID int64
	var name, kd string
	var unitName, unitDsc sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT s.sensor_id, s.name, s.type, u.name, u.description
		FROM sensors s LEFT JOIN units u ON u.id = s.unit WHERE s.uuid = ?`, id.String()).
		Scan(&sensorID, &name, &kd, &unitName, &unitDsc)
	if err == sql.ErrNoRows {
		return nil, datamodel.NewError(datamodel.SensorNotFound, "no sensor with uuid %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query sensor %s: %w", id, err)
	}
	sensorType, err := datamodel.ParseSensorType(kd)
	if err != nil {
		return nil, err
	}
	var unit *datamodel.Unit
	if unitName.Valid {
		var description *string
		if unitDsc.Valid {
			d := unitDsc.String
			description = &d
		}
		u := datamodel.NewUnit(unitName.String, description)
		unit = &u
	}
	rows := []sensorRow{{id: sensorID, sensor: datamodel.Sensor{UUID: id, Name: name, Type: sensorType, Unit: unit}}}
	if err := s.attachLabels(ctx, rows); err != nil {
		return nil, err
	}
	sensor := rows[0].sensor

	effectiveLimit := storage.DefaultQueryLimit
	if limit != nil {
		effectiveLimit = *limit
	}
	samples, err := s.querySamples(ctx, sensorID, sensor.Type, start, end, effectiveLimit)
	if err != nil {
		return nil, err
	}
	return &storage.SensorData{Sensor: sensor, Samples: samples}, nil
}

// QuerySensorsByLabels implements storage.Storage: resolve every
// sensor matching matchers (and, if numericOnly, restricted to the
// {Integer, Numeric, Float} family), then fetch samples in the given
// window for all of them. A matched sensor with no rows in the window
// still appears with an empty TypedSamples of its declared kind
// (§4.5.5, P8).
//
// Samples are fetched bucketed by SensorType rather than one query per
// sensor (§4.5.5 "Batched sample fetch"): SQLite has no lateral-join
// equivalent to return every bucket's rows pre-limited per sensor in
// one statement, so querySamplesBatch issues one query per bucket and
// enforces the per-sensor limit while decoding.
func (s *Storage) QuerySensorsByLabels(ctx context.Context, matchers []storage.LabelMatcher, start, end *time.Time, limit *int64, numericOnly bool) ([]storage.SensorData, error) {
	rows, err := s.allSensors(ctx, nil)
	if err != nil {
		return nil, err
	}

	effectiveLimit := storage.DefaultQueryLimit
	if limit != nil {
		effectiveLimit = *limit
	}

	var matched []sensorRow
	for _, r := range rows {
		if numericOnly && !r.sensor.Type.IsNumeric() {
			continue
		}
		ok, err := matchesAll(r.sensor, matchers)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	byType := make(map[datamodel.SensorType][]int64)
	for _, r := range matched {
		byType[r.sensor.Type] = append(byType[r.sensor.Type], r.id)
	}

	samplesByID := make(map[int64]datamodel.TypedSamples, len(matched))
	for kind, ids := range byType {
		bucket, err := s.querySamplesBatch(ctx, ids, kind, start, end, effectiveLimit)
		if err != nil {
			return nil, err
		}
		for id, samples := range bucket {
			samplesByID[id] = samples
		}
	}

	out := make([]storage.SensorData, 0, len(matched))
	for _, r := range matched {
		samples, ok := samplesByID[r.id]
		if !ok {
			samples = datamodel.EmptyOfKind(r.sensor.Type)
		}
		out = append(out, storage.SensorData{Sensor: r.sensor, Samples: samples})
	}
	return out, nil
}

// querySamples fetches up to limit samples for sensorID of the given
// kind, ordered by timestamp ascending, optionally bounded by
// [start, end].
func (s *Storage) querySamples(ctx context.Context, sensorID int64, kind datamodel.SensorType, start, end *time.Time, limit int64) (datamodel.TypedSamples, error) {
	where, args := timeWindowClause(sensorID, start, end)

	switch kind {
	case datamodel.Integer:
		out := datamodel.IntegerSamples{}
		err := s.scanSamples(ctx, "integer_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v int64
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[int64]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Numeric:
		out := datamodel.NumericSamples{}
		err := s.scanSamples(ctx, "numeric_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v string
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			dec, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("parse decimal %q: %w", v, err)
			}
			out = append(out, datamodel.Sample[decimal.Decimal]{Time: datamodel.FromMicros(ts), Value: dec})
			return nil
		})
		return out, err
	case datamodel.Float:
		out := datamodel.FloatSamples{}
		err := s.scanSamples(ctx, "float_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v float64
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[float64]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.String:
		out := datamodel.StringSamples{}
		query := fmt.Sprintf(`SELECT sv.timestamp_us, d.value FROM string_values sv
			JOIN strings_values_dictionary d ON d.id = sv.value
			WHERE %s ORDER BY sv.timestamp_us ASC LIMIT ?`, where)
		err := s.scanRaw(ctx, query, append(args, limit), func(rows *sql.Rows) error {
			var ts int64
			var v string
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[string]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Boolean:
		out := datamodel.BooleanSamples{}
		err := s.scanSamples(ctx, "boolean_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v bool
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[bool]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Location:
		out := datamodel.LocationSamples{}
		query := fmt.Sprintf(`SELECT timestamp_us, latitude, longitude FROM location_values WHERE %s ORDER BY timestamp_us ASC LIMIT ?`, where)
		err := s.scanRaw(ctx, query, append(args, limit), func(rows *sql.Rows) error {
			var ts int64
			var lat, lon float64
			if err := rows.Scan(&ts, &lat, &lon); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[orb.Point]{Time: datamodel.FromMicros(ts), Value: orb.Point{lon, lat}})
			return nil
		})
		return out, err
	case datamodel.Json:
		out := datamodel.JSONSamples{}
		err := s.scanSamples(ctx, "json_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v string
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[json.RawMessage]{Time: datamodel.FromMicros(ts), Value: json.RawMessage(v)})
			return nil
		})
		return out, err
	case datamodel.Blob:
		out := datamodel.BlobSamples{}
		err := s.scanSamples(ctx, "blob_values", where, args, limit, func(rows *sql.Rows) error {
			var ts int64
			var v []byte
			if err := rows.Scan(&ts, &v); err != nil {
				return err
			}
			out = append(out, datamodel.Sample[[]byte]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	default:
		return nil, fmt.Errorf("unsupported sensor type %v", kind)
	}
}

func timeWindowClause(sensorID int64, start, end *time.Time) (string, []any) {
	clause := "sensor_id = ?"
	args := []any{sensorID}
	if start != nil {
		clause += " AND timestamp_us >= ?"
		args = append(args, datamodel.ToMicros(*start))
	}
	if end != nil {
		clause += " AND timestamp_us <= ?"
		args = append(args, datamodel.ToMicros(*end))
	}
	return clause, args
}

// timeWindowClauseMulti is timeWindowClause generalized to a bucket of
// sensor ids sharing one SensorType (§4.5.5).
func timeWindowClauseMulti(sensorIDs []int64, start, end *time.Time) (string, []any) {
	placeholders := make([]string, len(sensorIDs))
	args := make([]any, 0, len(sensorIDs)+2)
	for i, id := range sensorIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	clause := fmt.Sprintf("sensor_id IN (%s)", strings.Join(placeholders, ","))
	if start != nil {
		clause += " AND timestamp_us >= ?"
		args = append(args, datamodel.ToMicros(*start))
	}
	if end != nil {
		clause += " AND timestamp_us <= ?"
		args = append(args, datamodel.ToMicros(*end))
	}
	return clause, args
}

// querySamplesBatch fetches samples for every sensor in sensorIDs (all
// of kind) in a single query, ordered by (sensor_id, timestamp_us), and
// enforces the per-sensor limit while decoding rows — SQLite has no
// per-group LIMIT, so a plain "LIMIT ?" on the whole bucket would
// starve later sensors of their share (§4.5.5).
func (s *Storage) querySamplesBatch(ctx context.Context, sensorIDs []int64, kind datamodel.SensorType, start, end *time.Time, limit int64) (map[int64]datamodel.TypedSamples, error) {
	where, args := timeWindowClauseMulti(sensorIDs, start, end)
	counts := make(map[int64]int64, len(sensorIDs))
	take := func(id int64) bool {
		if counts[id] >= limit {
			return false
		}
		counts[id]++
		return true
	}
	out := make(map[int64]datamodel.TypedSamples, len(sensorIDs))

	switch kind {
	case datamodel.Integer:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM integer_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts, v int64
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.IntegerSamples)
			out[id] = append(samples, datamodel.Sample[int64]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Numeric:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM numeric_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v string
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			dec, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("parse decimal %q: %w", v, err)
			}
			samples, _ := out[id].(datamodel.NumericSamples)
			out[id] = append(samples, datamodel.Sample[decimal.Decimal]{Time: datamodel.FromMicros(ts), Value: dec})
			return nil
		})
		return out, err
	case datamodel.Float:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM float_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v float64
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.FloatSamples)
			out[id] = append(samples, datamodel.Sample[float64]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.String:
		query := fmt.Sprintf(`SELECT sv.sensor_id, sv.timestamp_us, d.value FROM string_values sv
			JOIN strings_values_dictionary d ON d.id = sv.value
			WHERE %s ORDER BY sv.sensor_id ASC, sv.timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v string
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.StringSamples)
			out[id] = append(samples, datamodel.Sample[string]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Boolean:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM boolean_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v bool
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.BooleanSamples)
			out[id] = append(samples, datamodel.Sample[bool]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	case datamodel.Location:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, latitude, longitude FROM location_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var lat, lon float64
			if err := rows.Scan(&id, &ts, &lat, &lon); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.LocationSamples)
			out[id] = append(samples, datamodel.Sample[orb.Point]{Time: datamodel.FromMicros(ts), Value: orb.Point{lon, lat}})
			return nil
		})
		return out, err
	case datamodel.Json:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM json_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v string
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.JSONSamples)
			out[id] = append(samples, datamodel.Sample[json.RawMessage]{Time: datamodel.FromMicros(ts), Value: json.RawMessage(v)})
			return nil
		})
		return out, err
	case datamodel.Blob:
		query := fmt.Sprintf(`SELECT sensor_id, timestamp_us, value FROM blob_values WHERE %s ORDER BY sensor_id ASC, timestamp_us ASC`, where)
		err := s.scanRaw(ctx, query, args, func(rows *sql.Rows) error {
			var id, ts int64
			var v []byte
			if err := rows.Scan(&id, &ts, &v); err != nil {
				return err
			}
			if !take(id) {
				return nil
			}
			samples, _ := out[id].(datamodel.BlobSamples)
			out[id] = append(samples, datamodel.Sample[[]byte]{Time: datamodel.FromMicros(ts), Value: v})
			return nil
		})
		return out, err
	default:
		return nil, fmt.Errorf("unsupported sensor type %v", kind)
	}
}

func (s *Storage) scanSamples(ctx context.Context, table, where string, args []any, limit int64, scan func(*sql.Rows) error) error {
	query := fmt.Sprintf("SELECT timestamp_us, value FROM %s WHERE %s ORDER BY timestamp_us ASC LIMIT ?", table, where)
	return s.scanRaw(ctx, query, append(args, limit), scan)
}

func (s *Storage) scanRaw(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan sample: %w", err)
		}
	}
	return rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Publish writes one Batch inside a single SQLite transaction, each
// SingleSensorBatch's samples landing in the value table matching its
// kind (§4.4, §4.5.3).
func (s *Storage) Publish(ctx context.Context, b batch.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("publish: begin: %w", err)
	}
	defer tx.Rollback()

	for _, item := range b.Items {
		sensor := item.Sensor()
		sensorID, err := s.getOrCreateSensorID(ctx, tx, sensor)
		if err != nil {
			return datamodel.WrapError(datamodel.Database, err, "resolve sensor id for %s", sensor.Name)
		}
		if err := s.writeSamples(ctx, tx, sensorID, item.Samples()); err != nil {
			return datamodel.WrapError(datamodel.Database, err, "write samples for %s", sensor.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("publish: commit: %w", err)
	}
	return nil
}

func (s *Storage) writeSamples(ctx context.Context, tx *sql.Tx, sensorID int64, samples datamodel.TypedSamples) error {
	switch typed := samples.(type) {
	case datamodel.IntegerSamples:
		return insertRows(ctx, tx, "INSERT INTO integer_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value}
			})
	case datamodel.NumericSamples:
		return insertRows(ctx, tx, "INSERT INTO numeric_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value.String()}
			})
	case datamodel.FloatSamples:
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO float_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sample := range typed {
			if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
				// SQLite has no IEEE-754 NaN/Inf literal; such samples
				// are dropped on this backend rather than rejected.
				continue
			}
			if _, err := stmt.ExecContext(ctx, sensorID, datamodel.ToMicros(sample.Time), sample.Value); err != nil {
				return err
			}
		}
		return nil
	case datamodel.StringSamples:
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO string_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sample := range typed {
			valueID, err := s.getOrCreateStringValue(ctx, tx, sample.Value)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, sensorID, datamodel.ToMicros(sample.Time), valueID); err != nil {
				return err
			}
		}
		return nil
	case datamodel.BooleanSamples:
		return insertRows(ctx, tx, "INSERT INTO boolean_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value}
			})
	case datamodel.LocationSamples:
		return insertRows(ctx, tx, "INSERT INTO location_values (sensor_id, timestamp_us, latitude, longitude) VALUES (?, ?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value.Y(), typed[i].Value.X()}
			})
	case datamodel.JSONSamples:
		return insertRows(ctx, tx, "INSERT INTO json_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), string(typed[i].Value)}
			})
	case datamodel.BlobSamples:
		return insertRows(ctx, tx, "INSERT INTO blob_values (sensor_id, timestamp_us, value) VALUES (?, ?, ?)",
			len(typed), func(i int) []any {
				return []any{sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value}
			})
	default:
		return fmt.Errorf("unsupported sample kind %T", samples)
	}
}

// insertRows executes the same prepared insert once per row, arg(i)
// supplying the bind values for row i.
func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, arg func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, arg(i)...); err != nil {
			return err
		}
	}
	return nil
}

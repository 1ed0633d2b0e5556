package clickhouse

import (
	"context"
	"fmt"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Publish writes one Batch using the teacher's PrepareBatch idiom: one
// batch per SingleSensorBatch per value table, since ClickHouse has no
// interactive transactions spanning several inserts (§9's ClickHouse
// deviation note).
func (s *Storage) Publish(ctx context.Context, b batch.Batch) error {
	for _, item := range b.Items {
		sensor := item.Sensor()
		sensorID, err := s.getOrCreateSensorID(ctx, sensor)
		if err != nil {
			return datamodel.WrapError(datamodel.Database, err, "resolve sensor id for %s", sensor.Name)
		}
		if err := s.writeSamples(ctx, sensorID, item.Samples()); err != nil {
			return datamodel.WrapError(datamodel.Database, err, "write samples for %s", sensor.Name)
		}
	}
	return nil
}

func (s *Storage) writeSamples(ctx context.Context, sensorID int64, samples datamodel.TypedSamples) error {
	switch typed := samples.(type) {
	case datamodel.IntegerSamples:
		return s.appendBatch(ctx, "INSERT INTO integer_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value)
		})
	case datamodel.NumericSamples:
		return s.appendBatch(ctx, "INSERT INTO numeric_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value.String())
		})
	case datamodel.FloatSamples:
		// ClickHouse's Float64 accepts NaN/Inf directly, so nothing is
		// dropped here, matching PostgreSQL rather than SQLite.
		return s.appendBatch(ctx, "INSERT INTO float_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value)
		})
	case datamodel.StringSamples:
		if len(typed) == 0 {
			return nil
		}
		batchInsert, err := s.conn.PrepareBatch(ctx, "INSERT INTO string_values (sensor_id, timestamp_us, value)")
		if err != nil {
			return fmt.Errorf("prepare string_values batch: %w", err)
		}
		for _, sample := range typed {
			valueID, err := s.getOrCreateStringValue(ctx, sample.Value)
			if err != nil {
				return err
			}
			if err := batchInsert.Append(sensorID, datamodel.ToMicros(sample.Time), valueID); err != nil {
				return fmt.Errorf("append string_values row: %w", err)
			}
		}
		return batchInsert.Send()
	case datamodel.BooleanSamples:
		return s.appendBatch(ctx, "INSERT INTO boolean_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value)
		})
	case datamodel.LocationSamples:
		return s.appendBatch(ctx, "INSERT INTO location_values (sensor_id, timestamp_us, latitude, longitude)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), typed[i].Value.Y(), typed[i].Value.X())
		})
	case datamodel.JSONSamples:
		return s.appendBatch(ctx, "INSERT INTO json_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), string(typed[i].Value))
		})
	case datamodel.BlobSamples:
		return s.appendBatch(ctx, "INSERT INTO blob_values (sensor_id, timestamp_us, value)", len(typed), func(b ch.Batch, i int) error {
			return b.Append(sensorID, datamodel.ToMicros(typed[i].Time), string(typed[i].Value))
		})
	default:
		return fmt.Errorf("unsupported sample kind %T", samples)
	}
}

func (s *Storage) appendBatch(ctx context.Context, insert string, n int, appendRow func(ch.Batch, int) error) error {
	if n == 0 {
		return nil
	}
	batchInsert, err := s.conn.PrepareBatch(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare batch %q: %w", insert, err)
	}
	for i := 0; i < n; i++ {
		if err := appendRow(batchInsert, i); err != nil {
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}
	return batchInsert.Send()
}

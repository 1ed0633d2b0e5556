package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Publish writes one Batch inside a single PostgreSQL transaction, each
// SingleSensorBatch's samples landing in the value table matching its
// kind (§4.4, §4.5.3).
func (s *Storage) Publish(ctx context.Context, b batch.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("publish: begin: %w", err)
	}
	defer tx.Rollback(ctx)

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

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("publish: commit: %w", err)
	}
	return nil
}

func (s *Storage) writeSamples(ctx context.Context, tx pgx.Tx, sensorID int64, samples datamodel.TypedSamples) error {
	switch typed := samples.(type) {
	case datamodel.IntegerSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO integer_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value)
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.NumericSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO numeric_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value.String())
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.FloatSamples:
		// PostgreSQL's DOUBLE PRECISION accepts NaN/Infinity literals
		// directly, unlike SQLite, so nothing is dropped here (§9's
		// per-backend Float note).
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO float_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value)
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.StringSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			valueID, err := s.getOrCreateStringValue(ctx, tx, sample.Value)
			if err != nil {
				return err
			}
			batchInsert.Queue("INSERT INTO string_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), valueID)
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.BooleanSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO boolean_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value)
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.LocationSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO location_values (sensor_id, timestamp_us, latitude, longitude) VALUES ($1, $2, $3, $4)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value.Y(), sample.Value.X())
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.JSONSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO json_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), string(sample.Value))
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	case datamodel.BlobSamples:
		batchInsert := &pgx.Batch{}
		for _, sample := range typed {
			batchInsert.Queue("INSERT INTO blob_values (sensor_id, timestamp_us, value) VALUES ($1, $2, $3)",
				sensorID, datamodel.ToMicros(sample.Time), sample.Value)
		}
		return sendBatch(ctx, tx, batchInsert, len(typed))
	default:
		return fmt.Errorf("unsupported sample kind %T", samples)
	}
}

// sendBatch executes a pgx.Batch of n queued inserts, draining every
// result so errors surface and the connection is left ready for reuse.
func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch, n int) error {
	if n == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, b)
	defer results.Close()
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert row %d: %w", i, err)
		}
	}
	return nil
}

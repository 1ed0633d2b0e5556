package rrdcached

import (
	"context"
	"fmt"
	"log"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Publish converts each sensor's samples to rrdcached UPDATE lines and
// sends them in one BATCH command, creating any RRD file that hasn't
// been seen yet first. Only the four numeric-ish kinds rrdcached's
// gauge data source can hold (Integer, Numeric, Float, Boolean) are
// supported; other kinds are skipped with a logged warning, matching
// the reference implementation's "Unsupported type" behavior.
func (s *Storage) Publish(ctx context.Context, b batch.Batch) error {
	if len(b.Items) == 0 {
		return nil
	}

	var lines []string
	minTimestamp := int64(-1)

	for _, item := range b.Items {
		sensor := item.Sensor()
		path := sensor.UUID.String()
		samples := item.Samples()

		n := samples.Len()
		if n == 0 {
			continue
		}

		rows, earliest, err := updateLines(path, samples)
		if err != nil {
			return err
		}
		if rows == nil {
			log.Printf("rrdcached: WARNING: skipping unsupported sample kind %s for sensor %s", sensor.Type, sensor.Name)
			continue
		}
		lines = append(lines, rows...)
		if minTimestamp < 0 || earliest < minTimestamp {
			minTimestamp = earliest
		}

		if !s.hasCreated(sensor.UUID) {
			start := minTimestamp - int64(s.cfg.HeartbeatSeconds)
			if err := s.c.create(path, s.cfg.HeartbeatSeconds, s.cfg.StepSeconds, start, s.cfg.Preset.roundRobinArchives()); err != nil {
				return datamodel.WrapError(datamodel.Database, err, "rrdcached: create RRD for sensor %s", sensor.Name)
			}
			s.markCreated(sensor.UUID)
		}
	}

	if len(lines) == 0 {
		return nil
	}

	if err := s.c.batchUpdate(lines); err != nil {
		return datamodel.WrapError(datamodel.Database, err, "rrdcached: batch update")
	}

	if err := s.c.flushAll(); err != nil {
		return datamodel.WrapError(datamodel.Database, err, "rrdcached: flush")
	}
	return nil
}

// updateLines renders one "UPDATE path timestamp:value" line per
// sample, and returns the smallest timestamp seen (Unix seconds,
// floored) so a not-yet-created RRD file can be started just before
// it. rows is nil for kinds rrdcached cannot store.
func updateLines(path string, samples datamodel.TypedSamples) (rows []string, earliest int64, err error) {
	earliest = -1
	note := func(t int64) {
		if earliest < 0 || t < earliest {
			earliest = t
		}
	}

	switch typed := samples.(type) {
	case datamodel.IntegerSamples:
		for _, v := range typed {
			t := v.Time.Unix()
			note(t)
			rows = append(rows, fmt.Sprintf("UPDATE %s %d:%d", path, t, v.Value))
		}
	case datamodel.NumericSamples:
		for _, v := range typed {
			t := v.Time.Unix()
			note(t)
			f, _ := v.Value.Float64()
			rows = append(rows, fmt.Sprintf("UPDATE %s %d:%s", path, t, formatGauge(f)))
		}
	case datamodel.FloatSamples:
		for _, v := range typed {
			t := v.Time.Unix()
			note(t)
			rows = append(rows, fmt.Sprintf("UPDATE %s %d:%s", path, t, formatGauge(v.Value)))
		}
	case datamodel.BooleanSamples:
		for _, v := range typed {
			t := v.Time.Unix()
			note(t)
			value := 0
			if v.Value {
				value = 1
			}
			rows = append(rows, fmt.Sprintf("UPDATE %s %d:%d", path, t, value))
		}
	default:
		return nil, -1, nil
	}
	return rows, earliest, nil
}

func formatGauge(f float64) string {
	if f != f { // NaN
		return "U"
	}
	return fmt.Sprintf("%g", f)
}

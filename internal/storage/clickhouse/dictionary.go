package clickhouse

import (
	"context"
	"fmt"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

// getOrCreateUnit interns unit into the units dictionary by its
// deterministic hash id (hash.go), inserting the row once per process
// (ReplacingMergeTree merges away any duplicate rows other processes
// insert concurrently for the same id/value, §4.5.1's SELECT-then-
// INSERT pattern relaxed to match ClickHouse's append-only model).
func (s *Storage) getOrCreateUnit(ctx context.Context, unit *datamodel.Unit) (int64, bool, error) {
	if unit == nil {
		return 0, false, nil
	}
	if id, ok := s.unitCache.Get(unit.Name); ok {
		return id, true, nil
	}

	id := dictionaryIDOf(unit.Name)
	if err := s.insertUnit(ctx, id, unit.Name, unit.Description); err != nil {
		return 0, false, err
	}
	s.unitCache.Put(unit.Name, id)
	return id, true, nil
}

func (s *Storage) insertUnit(ctx context.Context, id int64, name string, description *string) error {
	if err := s.conn.Exec(ctx, "INSERT INTO units (id, name, description) VALUES (?, ?, ?)", id, name, description); err != nil {
		return fmt.Errorf("insert unit %q: %w", name, err)
	}
	return nil
}

func (s *Storage) getOrCreateLabelName(ctx context.Context, name string) (int64, error) {
	return internDictionary(ctx, s.conn, s.labelNameCache, "labels_name_dictionary", "name", name)
}

func (s *Storage) getOrCreateLabelDescription(ctx context.Context, description string) (int64, error) {
	return internDictionary(ctx, s.conn, s.labelDescCache, "labels_description_dictionary", "description", description)
}

func (s *Storage) getOrCreateStringValue(ctx context.Context, value string) (int64, error) {
	return internDictionary(ctx, s.conn, s.stringValueCache, "strings_values_dictionary", "value", value)
}

// internDictionary inserts value into table under its deterministic
// hash id the first time this process sees it; the cache makes every
// later call for the same value a pure lookup, no round trip.
func internDictionary(ctx context.Context, conn ch.Conn, cache *lrucache.Cache, table, column, value string) (int64, error) {
	if id, ok := cache.Get(value); ok {
		return id, nil
	}
	id := dictionaryIDOf(value)
	query := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (?, ?)", table, column)
	if err := conn.Exec(ctx, query, id, value); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	cache.Put(value, id)
	return id, nil
}

// getOrCreateSensorID resolves sensor to its hash-derived sensor_id,
// inserting the sensors row (and its labels rows) the first time this
// process sees the UUID. The cache is never invalidated (§4.5.2):
// sensor rows are immutable once written.
func (s *Storage) getOrCreateSensorID(ctx context.Context, sensor datamodel.Sensor) (int64, error) {
	key := sensor.UUID.String()
	if id, ok := s.sensorIDCache.Get(key); ok {
		return id, nil
	}

	id := sensorIDOf(key)

	unitID, hasUnit, err := s.getOrCreateUnit(ctx, sensor.Unit)
	if err != nil {
		return 0, err
	}
	var unitArg any
	if hasUnit {
		unitArg = unitID
	}

	if err := s.conn.Exec(ctx,
		"INSERT INTO sensors (sensor_id, uuid, name, type, unit_id) VALUES (?, ?, ?, ?, ?)",
		id, key, sensor.Name, sensor.Type.String(), unitArg); err != nil {
		return 0, fmt.Errorf("insert sensor %s: %w", sensor.Name, err)
	}

	for _, label := range sensor.Labels {
		nameID, err := s.getOrCreateLabelName(ctx, label.Key)
		if err != nil {
			return 0, err
		}
		descID, err := s.getOrCreateLabelDescription(ctx, label.Value)
		if err != nil {
			return 0, err
		}
		if err := s.conn.Exec(ctx,
			"INSERT INTO labels (sensor_id, name_id, description_id) VALUES (?, ?, ?)",
			id, nameID, descID); err != nil {
			return 0, fmt.Errorf("insert label %s for sensor %s: %w", label.Key, sensor.Name, err)
		}
	}

	s.sensorIDCache.Put(key, id)
	return id, nil
}

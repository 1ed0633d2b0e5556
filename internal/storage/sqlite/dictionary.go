package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

// getOrCreateUnit interns unit into the units dictionary, returning its
// row id. A nil unit yields (0, false, nil): no FK is attached.
func (s *Storage) getOrCreateUnit(ctx context.Context, tx *sql.Tx, unit *datamodel.Unit) (int64, bool, error) {
	if unit == nil {
		return 0, false, nil
	}
	if id, ok := s.unitCache.Get(unit.Name); ok {
		return id, true, nil
	}

	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM units WHERE name = ?", unit.Name).Scan(&id)
	switch {
	case err == nil:
		s.unitCache.Put(unit.Name, id)
		return id, true, nil
	case err != sql.ErrNoRows:
		return 0, false, fmt.Errorf("lookup unit %q: %w", unit.Name, err)
	}

	var description sql.NullString
	if unit.Description != nil {
		description = sql.NullString{String: *unit.Description, Valid: true}
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO units (name, description) VALUES (?, ?)", unit.Name, description)
	if err != nil {
		return 0, false, fmt.Errorf("insert unit %q: %w", unit.Name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("unit id %q: %w", unit.Name, err)
	}
	s.unitCache.Put(unit.Name, id)
	return id, true, nil
}

func (s *Storage) getOrCreateLabelName(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return internDictionary(ctx, tx, s.labelNameCache, "labels_name_dictionary", "name", name)
}

func (s *Storage) getOrCreateLabelDescription(ctx context.Context, tx *sql.Tx, description string) (int64, error) {
	return internDictionary(ctx, tx, s.labelDescCache, "labels_description_dictionary", "description", description)
}

func (s *Storage) getOrCreateStringValue(ctx context.Context, tx *sql.Tx, value string) (int64, error) {
	return internDictionary(ctx, tx, s.stringValueCache, "strings_values_dictionary", "value", value)
}

// internDictionary implements the shared SELECT-then-INSERT interning
// pattern used by every dictionary table (§4.5.1): check the bounded
// LRU first, then the table, then insert on a miss.
func internDictionary(ctx context.Context, tx *sql.Tx, cache *lrucache.Cache, table, column, value string) (int64, error) {
	if id, ok := cache.Get(value); ok {
		return id, nil
	}

	var id int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column)
	err := tx.QueryRowContext(ctx, query, value).Scan(&id)
	switch {
	case err == nil:
		cache.Put(value, id)
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("lookup %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", table, column)
	res, err := tx.ExecContext(ctx, insert, value)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s id: %w", table, err)
	}
	cache.Put(value, id)
	return id, nil
}

// getOrCreateSensorID resolves sensor to its integer row id, creating
// the sensors row (and its labels rows) on first sight. The
// uuid->sensor_id cache is never invalidated (§4.5.2): sensor rows are
// immutable once written.
func (s *Storage) getOrCreateSensorID(ctx context.Context, tx *sql.Tx, sensor datamodel.Sensor) (int64, error) {
	key := sensor.UUID.String()
	if id, ok := s.sensorIDCache.Get(key); ok {
		return id, nil
	}

	var id int64
	err := tx.QueryRowContext(ctx, "SELECT sensor_id FROM sensors WHERE uuid = ?", key).Scan(&id)
	switch {
	case err == nil:
		s.sensorIDCache.Put(key, id)
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("lookup sensor %s: %w", key, err)
	}

	unitID, hasUnit, err := s.getOrCreateUnit(ctx, tx, sensor.Unit)
	if err != nil {
		return 0, err
	}
	var unitArg any
	if hasUnit {
		unitArg = unitID
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO sensors (uuid, name, type, unit) VALUES (?, ?, ?, ?)",
		key, sensor.Name, sensor.Type.String(), unitArg)
	if err != nil {
		return 0, fmt.Errorf("insert sensor %s: %w", sensor.Name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sensor id %s: %w", sensor.Name, err)
	}

	for _, label := range sensor.Labels {
		nameID, err := s.getOrCreateLabelName(ctx, tx, label.Key)
		if err != nil {
			return 0, err
		}
		descID, err := s.getOrCreateLabelDescription(ctx, tx, label.Value)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO labels (sensor_id, name_id, description_id) VALUES (?, ?, ?)",
			id, nameID, descID); err != nil {
			return 0, fmt.Errorf("insert label %s for sensor %s: %w", label.Key, sensor.Name, err)
		}
	}

	s.sensorIDCache.Put(key, id)
	return id, nil
}

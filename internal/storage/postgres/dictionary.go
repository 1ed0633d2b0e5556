package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

// uniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505). Two concurrent Publish calls interning the same
// new dictionary value race the SELECT; losing the INSERT to the
// unique constraint is the expected outcome, not a failure (§4.5.1).
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// insertOrSelectID runs insert inside a savepoint (pgx.Tx.Begin nests
// via SAVEPOINT) so that a losing INSERT only rolls back the insert
// attempt, not the whole Publish transaction it's embedded in; a
// unique-violation there means a concurrent caller already committed
// the row, so we roll back and re-SELECT to converge on its id
// (§4.5.1: "conflicts on the unique key are resolved by re-read"). The
// returned bool reports whether insert actually ran: false means a
// concurrent caller won the race and any insert-only side effects
// (e.g. dependent rows) must be skipped by the caller.
func insertOrSelectID(ctx context.Context, tx pgx.Tx, insert string, insertArgs []any, selectQuery string, selectArgs []any) (int64, bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin savepoint: %w", err)
	}

	var id int64
	if err := sp.QueryRow(ctx, insert, insertArgs...).Scan(&id); err != nil {
		_ = sp.Rollback(ctx)
		if !uniqueViolation(err) {
			return 0, false, err
		}
		if err := tx.QueryRow(ctx, selectQuery, selectArgs...).Scan(&id); err != nil {
			return 0, false, fmt.Errorf("re-lookup after conflict: %w", err)
		}
		return id, false, nil
	}

	if err := sp.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit savepoint: %w", err)
	}
	return id, true, nil
}

// getOrCreateUnit interns unit into the units dictionary, returning its
// row id. A nil unit yields (0, false, nil): no FK is attached.
func (s *Storage) getOrCreateUnit(ctx context.Context, tx pgx.Tx, unit *datamodel.Unit) (int64, bool, error) {
	if unit == nil {
		return 0, false, nil
	}
	if id, ok := s.unitCache.Get(unit.Name); ok {
		return id, true, nil
	}

	selectQuery := "SELECT id FROM units WHERE name = $1"

	var id int64
	err := tx.QueryRow(ctx, selectQuery, unit.Name).Scan(&id)
	switch {
	case err == nil:
		s.unitCache.Put(unit.Name, id)
		return id, true, nil
	case err != pgx.ErrNoRows:
		return 0, false, fmt.Errorf("lookup unit %q: %w", unit.Name, err)
	}

	id, _, err = insertOrSelectID(ctx, tx,
		"INSERT INTO units (name, description) VALUES ($1, $2) RETURNING id", []any{unit.Name, unit.Description},
		selectQuery, []any{unit.Name})
	if err != nil {
		return 0, false, fmt.Errorf("insert unit %q: %w", unit.Name, err)
	}
	s.unitCache.Put(unit.Name, id)
	return id, true, nil
}

func (s *Storage) getOrCreateLabelName(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	return internDictionary(ctx, tx, s.labelNameCache, "labels_name_dictionary", "name", name)
}

func (s *Storage) getOrCreateLabelDescription(ctx context.Context, tx pgx.Tx, description string) (int64, error) {
	return internDictionary(ctx, tx, s.labelDescCache, "labels_description_dictionary", "description", description)
}

func (s *Storage) getOrCreateStringValue(ctx context.Context, tx pgx.Tx, value string) (int64, error) {
	return internDictionary(ctx, tx, s.stringValueCache, "strings_values_dictionary", "value", value)
}

// internDictionary implements the shared SELECT-then-INSERT interning
// pattern used by every dictionary table (§4.5.1): check the bounded
// LRU first, then the table, then insert on a miss, re-reading on a
// unique-key conflict so concurrent interners of the same value
// converge on the same id.
func internDictionary(ctx context.Context, tx pgx.Tx, cache *lrucache.Cache, table, column, value string) (int64, error) {
	if id, ok := cache.Get(value); ok {
		return id, nil
	}

	selectQuery := fmt.Sprintf("SELECT id FROM %s WHERE %s = $1", table, column)

	var id int64
	err := tx.QueryRow(ctx, selectQuery, value).Scan(&id)
	switch {
	case err == nil:
		cache.Put(value, id)
		return id, nil
	case err != pgx.ErrNoRows:
		return 0, fmt.Errorf("lookup %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1) RETURNING id", table, column)
	id, _, err = insertOrSelectID(ctx, tx, insert, []any{value}, selectQuery, []any{value})
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	cache.Put(value, id)
	return id, nil
}

// getOrCreateSensorID resolves sensor to its integer row id, creating
// the sensors row (and its labels rows) on first sight. The
// uuid->sensor_id cache is never invalidated (§4.5.2): sensor rows are
// immutable once written.
func (s *Storage) getOrCreateSensorID(ctx context.Context, tx pgx.Tx, sensor datamodel.Sensor) (int64, error) {
	key := sensor.UUID.String()
	if id, ok := s.sensorIDCache.Get(key); ok {
		return id, nil
	}

	selectQuery := "SELECT sensor_id FROM sensors WHERE uuid = $1"

	var id int64
	err := tx.QueryRow(ctx, selectQuery, key).Scan(&id)
	switch {
	case err == nil:
		s.sensorIDCache.Put(key, id)
		return id, nil
	case err != pgx.ErrNoRows:
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

	id, won, err := insertOrSelectID(ctx, tx,
		"INSERT INTO sensors (uuid, name, type, unit) VALUES ($1, $2, $3, $4) RETURNING sensor_id",
		[]any{key, sensor.Name, sensor.Type.String(), unitArg},
		selectQuery, []any{key})
	if err != nil {
		return 0, fmt.Errorf("insert sensor %s: %w", sensor.Name, err)
	}

	// A concurrent caller that already inserted this sensor row also
	// already inserted its labels; re-inserting them here would create
	// duplicates, so only the caller that actually won the insert race
	// populates labels.
	if won {
		for _, label := range sensor.Labels {
			nameID, err := s.getOrCreateLabelName(ctx, tx, label.Key)
			if err != nil {
				return 0, err
			}
			descID, err := s.getOrCreateLabelDescription(ctx, tx, label.Value)
			if err != nil {
				return 0, err
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO labels (sensor_id, name_id, description_id) VALUES ($1, $2, $3)",
				id, nameID, descID); err != nil {
				return 0, fmt.Errorf("insert label %s for sensor %s: %w", label.Key, sensor.Name, err)
			}
		}
	}

	s.sensorIDCache.Put(key, id)
	return id, nil
}

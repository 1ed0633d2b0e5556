// Package timescaledb adapts the PostgreSQL backend for TimescaleDB
// deployments: identical schema and query code, with each *_values
// table promoted to a hypertable partitioned on timestamp_us (§3.4).
package timescaledb

import (
	"context"
	"fmt"
	"strings"

	"github.com/sintef/sensapp-go/internal/storage"
	"github.com/sintef/sensapp-go/internal/storage/postgres"
)

func init() {
	storage.Register("timescaledb", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{ConnString: NormalizeSource(cs)})
	})
}

// valueTables are hypertable candidates: every per-kind value table
// carries a timestamp_us column (§3.4).
var valueTables = []string{
	"integer_values", "numeric_values", "float_values", "string_values",
	"boolean_values", "location_values", "json_values", "blob_values",
}

type Config struct {
	ConnString string
	MaxConns   int32
}

// Storage wraps a postgres.Storage, reusing every method (Publish,
// ListSeries, ListMetrics, QuerySensorData, QuerySensorsByLabels,
// HealthCheck, Vacuum, CleanupTestData, Close) unchanged and overriding
// only CreateOrMigrate to additionally register hypertables.
type Storage struct {
	*postgres.Storage
}

func IsSource(connectionString string) bool {
	return strings.HasPrefix(connectionString, "timescaledb://")
}

// NormalizeSource rewrites the timescaledb:// scheme to postgres://
// since the underlying driver (pgx) only recognizes the latter.
func NormalizeSource(connectionString string) string {
	return "postgres://" + strings.TrimPrefix(connectionString, "timescaledb://")
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	inner, err := postgres.New(ctx, postgres.Config{ConnString: cfg.ConnString, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, err
	}
	s := &Storage{Storage: inner}
	if err := s.createHypertables(ctx); err != nil {
		inner.Close()
		return nil, err
	}
	return s, nil
}

// CreateOrMigrate applies the PostgreSQL schema, then promotes the
// value tables to hypertables.
func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	if err := s.Storage.CreateOrMigrate(ctx); err != nil {
		return err
	}
	return s.createHypertables(ctx)
}

// createHypertables promotes every value table to a hypertable. Safe
// to call repeatedly: create_hypertable's if_not_exists guard makes it
// a no-op on a table that is already a hypertable.
func (s *Storage) createHypertables(ctx context.Context) error {
	for _, table := range valueTables {
		stmt := fmt.Sprintf(
			"SELECT create_hypertable('%s', 'timestamp_us', chunk_time_interval => 86400000000, if_not_exists => TRUE)", table)
		if _, err := s.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("timescaledb: create_hypertable(%s): %w", table, err)
		}
	}
	return nil
}

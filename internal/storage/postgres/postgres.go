// Package postgres implements the SensApp storage.Storage contract on
// PostgreSQL via pgx/pgxpool, following the pool-setup idiom of the
// teacher's internal/storage/postgres package: pgxpool.ParseConfig,
// a startup timezone check, and the same dictionary-interning and
// label-matcher algorithms as internal/storage/sqlite (§3.4, §4.5).
package postgres

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sintef/sensapp-go/internal/storage"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

func init() {
	storage.Register("postgres", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{ConnString: NormalizeSource(cs)})
	})
}

// Config configures a PostgreSQL-backed Storage.
type Config struct {
	ConnString string
	MaxConns   int32
}

// Storage implements storage.Storage on top of a pgxpool.Pool.
type Storage struct {
	pool *pgxpool.Pool

	unitCache        *lrucache.Cache
	labelNameCache   *lrucache.Cache
	labelDescCache   *lrucache.Cache
	stringValueCache *lrucache.Cache
	sensorIDCache    *lrucache.SensorIDCache
}

// Pool exposes the underlying connection pool so callers embedding
// Storage (e.g. internal/storage/timescaledb) can issue statements the
// generic interface doesn't cover, such as hypertable creation.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// IsSource reports whether connectionString names the postgres backend.
func IsSource(connectionString string) bool {
	return strings.HasPrefix(connectionString, "postgres://") || strings.HasPrefix(connectionString, "postgresql://")
}

// NormalizeSource returns connectionString unchanged: pgx accepts the
// postgres:// / postgresql:// scheme directly.
func NormalizeSource(connectionString string) string {
	return connectionString
}

// New opens a PostgreSQL storage handle and brings the schema up to date.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := ensureUTCTimezone(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Storage{
		pool:             pool,
		unitCache:        lrucache.New(0),
		labelNameCache:   lrucache.New(0),
		labelDescCache:   lrucache.New(0),
		stringValueCache: lrucache.New(0),
		sensorIDCache:    lrucache.NewSensorIDCache(),
	}
	if err := s.CreateOrMigrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureUTCTimezone checks the database timezone and warns if it isn't
// UTC; every timestamp this package writes/reads is already expressed
// as Unix microseconds, so a non-UTC server timezone cannot corrupt
// stored values, only session-level display of TIMESTAMPTZ literals we
// don't use.
func ensureUTCTimezone(ctx context.Context, pool *pgxpool.Pool) error {
	var tz string
	if err := pool.QueryRow(ctx, "SHOW timezone").Scan(&tz); err != nil {
		return fmt.Errorf("postgres: failed to check timezone: %w", err)
	}
	if tz == "UTC" || tz == "Etc/UTC" {
		return nil
	}
	log.Printf("postgres: WARNING: database timezone is %q, expected UTC", tz)
	return nil
}

// CreateOrMigrate applies the shared schema (§3.4); idempotent.
func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %s: %w", stmt, err)
		}
	}
	return nil
}

// HealthCheck pings the backend.
func (s *Storage) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres: health check: %w", err)
	}
	return nil
}

// Vacuum triggers a manual VACUUM (§3.5, §9).
func (s *Storage) Vacuum(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("postgres: vacuum: %w", err)
	}
	return nil
}

// CleanupTestData truncates all user tables, clears the in-process
// caches, and re-seeds the common units. Test-only (§4.4).
func (s *Storage) CleanupTestData(ctx context.Context) error {
	tables := []string{
		"integer_values", "numeric_values", "float_values", "string_values",
		"boolean_values", "location_values", "json_values", "blob_values",
		"labels", "sensors",
		"strings_values_dictionary", "labels_name_dictionary", "labels_description_dictionary",
		"units",
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: cleanup: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("postgres: cleanup: truncate: %w", err)
	}
	for _, name := range commonUnits {
		if _, err := tx.Exec(ctx, "INSERT INTO units (name) VALUES ($1)", name); err != nil {
			return fmt.Errorf("postgres: cleanup: reseed unit %s: %w", name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: cleanup: commit: %w", err)
	}

	s.unitCache.Clear()
	s.labelNameCache.Clear()
	s.labelDescCache.Clear()
	s.stringValueCache.Clear()
	s.sensorIDCache.Clear()
	return nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

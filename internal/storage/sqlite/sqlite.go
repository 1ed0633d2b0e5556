// Package sqlite implements the SensApp storage.Storage contract on
// SQLite via modernc.org/sqlite, following the connection/pragma idiom
// of the teacher's internal/storage/sqlite package and the
// dictionary-interning/publish-dispatch algorithms of
// original_source/src/storage/sqlite (§4.5, §9 SQLite deviations).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sintef/sensapp-go/internal/storage"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

func init() {
	storage.Register("sqlite", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{Source: NormalizeSource(cs)})
	})
}

// Config configures a SQLite-backed Storage.
type Config struct {
	// Source is a modernc.org/sqlite DSN, e.g. "file:sensapp.db" or
	// "file::memory:?cache=shared".
	Source string
	// Pragmas tunes journal/sync behavior; zero value uses synchronous
	// NORMAL and a 64 MB cache. WAL journaling is enabled only when WAL
	// is set.
	Pragmas Pragmas
}

// Pragmas mirrors the teacher's Pragmas shape, generalized with a
// Synchronous string instead of a single SyncOff bool so NORMAL, OFF,
// and FULL are all reachable.
type Pragmas struct {
	CacheMB     int
	WAL         bool
	Synchronous string // "OFF", "NORMAL", "FULL"; default NORMAL
}

func (p Pragmas) withDefaults() Pragmas {
	if p.Synchronous == "" {
		p.Synchronous = "NORMAL"
	}
	if p.CacheMB == 0 {
		p.CacheMB = 64
	}
	return p
}

// Storage implements storage.Storage on top of a *sql.DB opened
// against modernc.org/sqlite.
type Storage struct {
	db *sql.DB

	unitCache        *lrucache.Cache
	labelNameCache   *lrucache.Cache
	labelDescCache   *lrucache.Cache
	stringValueCache *lrucache.Cache
	sensorIDCache    *lrucache.SensorIDCache
}

// IsSource reports whether connectionString names the sqlite backend.
func IsSource(connectionString string) bool {
	return strings.HasPrefix(connectionString, "sqlite:")
}

// NormalizeSource strips the sqlite: scheme prefix, leaving a DSN the
// driver understands directly.
func NormalizeSource(connectionString string) string {
	return strings.TrimPrefix(connectionString, "sqlite:")
}

// New opens a SQLite storage handle and brings the schema up to date.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	db, err := sql.Open("sqlite", cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer serializes safely

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db, cfg.Pragmas.withDefaults()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	s := &Storage{
		db:               db,
		unitCache:        lrucache.New(0),
		labelNameCache:   lrucache.New(0),
		labelDescCache:   lrucache.New(0),
		stringValueCache: lrucache.New(0),
		sensorIDCache:    lrucache.NewSensorIDCache(),
	}
	if err := s.CreateOrMigrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, p Pragmas) error {
	stmts := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", p.CacheMB*1024),
		fmt.Sprintf("PRAGMA synchronous = %s", p.Synchronous),
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if p.WAL {
		stmts = append(stmts, "PRAGMA journal_mode = WAL")
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// CreateOrMigrate applies the shared schema (§3.4); idempotent.
func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", stmt, err)
		}
	}
	return nil
}

// HealthCheck pings the backend.
func (s *Storage) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// Vacuum reclaims space (§3.5, §9).
func (s *Storage) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// CleanupTestData truncates all user tables in FK-safe order, clears
// the in-process caches, and re-seeds the common units (test-only,
// §4.4).
func (s *Storage) CleanupTestData(ctx context.Context) error {
	tables := []string{
		"integer_values", "numeric_values", "float_values", "string_values",
		"boolean_values", "location_values", "json_values", "blob_values",
		"labels", "sensors",
		"strings_values_dictionary", "labels_name_dictionary", "labels_description_dictionary",
		"units",
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cleanup: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("cleanup: delete %s: %w", t, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
		// sqlite_sequence only exists once an AUTOINCREMENT table has
		// been written to; absence is not an error.
		_ = err
	}
	for _, name := range commonUnits {
		if _, err := tx.ExecContext(ctx, "INSERT INTO units (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("cleanup: reseed unit %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cleanup: commit: %w", err)
	}

	s.unitCache.Clear()
	s.labelNameCache.Clear()
	s.labelDescCache.Clear()
	s.stringValueCache.Clear()
	s.sensorIDCache.Clear()
	return nil
}

// Close releases the underlying *sql.DB.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Package clickhouse implements the SensApp storage.Storage contract on
// ClickHouse, following the teacher's internal/storage/clickhouse
// connection/batch-insert idiom (ch.ParseDSN, ch.Open, checkTimezone,
// PrepareBatch) adapted to SensApp's relational shape (§3.4, §9).
package clickhouse

import (
	"context"
	"fmt"
	"log"
	"strings"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sintef/sensapp-go/internal/storage"
	"github.com/sintef/sensapp-go/internal/storage/lrucache"
)

func init() {
	storage.Register("clickhouse", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{DSN: NormalizeSource(cs)})
	})
}

type Config struct {
	DSN string
}

type Storage struct {
	conn ch.Conn

	unitCache        *lrucache.Cache
	labelNameCache   *lrucache.Cache
	labelDescCache   *lrucache.Cache
	stringValueCache *lrucache.Cache
	sensorIDCache    *lrucache.SensorIDCache
}

// IsSource reports whether dsn names a ClickHouse connection. Only the
// native protocol (port 9000) is supported, matching the teacher: the
// v2 driver only speaks HTTP through database/sql.
func IsSource(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "clickhouse://") || strings.HasPrefix(lower, "ch://")
}

// NormalizeSource rewrites the shorthand ch:// scheme to clickhouse://,
// the only scheme the driver's DSN parser recognizes.
func NormalizeSource(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "ch://") {
		return "clickhouse://" + dsn[len("ch://"):]
	}
	return dsn
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("clickhouse: DSN is empty")
	}

	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse DSN: %w", err)
	}
	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	s := &Storage{
		conn:             conn,
		unitCache:        lrucache.New(0),
		labelNameCache:   lrucache.New(0),
		labelDescCache:   lrucache.New(0),
		stringValueCache: lrucache.New(0),
		sensorIDCache:    lrucache.NewSensorIDCache(),
	}
	s.checkTimezone(ctx)
	if err := s.CreateOrMigrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// checkTimezone warns (but never fails startup) when the server clock
// isn't UTC, matching the teacher's checkTimezone pattern.
func (s *Storage) checkTimezone(ctx context.Context) {
	var tz string
	row := s.conn.QueryRow(ctx, "SELECT timezone()")
	if err := row.Scan(&tz); err != nil {
		log.Printf("clickhouse: WARNING: failed to check timezone: %v", err)
		return
	}
	if tz == "UTC" || tz == "Etc/UTC" {
		return
	}
	log.Printf("clickhouse: WARNING: server timezone is %q, expected UTC", tz)
}

func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse: migrate: %s: %w", stmt, err)
		}
	}
	return nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	var one uint8
	if err := s.conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("clickhouse: health check: %w", err)
	}
	return nil
}

// Vacuum runs OPTIMIZE TABLE ... FINAL on every table instead of
// SQLite/PostgreSQL's VACUUM, forcing ReplacingMergeTree/MergeTree
// background merges to run eagerly (§3.5's "backend-defined: full
// VACUUM, OPTIMIZE, or no-op").
func (s *Storage) Vacuum(ctx context.Context) error {
	for _, table := range allTables {
		if err := s.conn.Exec(ctx, fmt.Sprintf("OPTIMIZE TABLE %s FINAL", table)); err != nil {
			return fmt.Errorf("clickhouse: optimize %s: %w", table, err)
		}
	}
	return nil
}

func (s *Storage) CleanupTestData(ctx context.Context) error {
	for _, table := range allTables {
		if err := s.conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("clickhouse: cleanup truncate %s: %w", table, err)
		}
	}
	for _, name := range commonUnits {
		if err := s.insertUnit(ctx, dictionaryIDOf(name), name, nil); err != nil {
			return fmt.Errorf("clickhouse: cleanup reseed unit %s: %w", name, err)
		}
	}

	s.unitCache.Clear()
	s.labelNameCache.Clear()
	s.labelDescCache.Clear()
	s.stringValueCache.Clear()
	s.sensorIDCache.Clear()
	return nil
}

var allTables = []string{
	"integer_values", "numeric_values", "float_values", "string_values",
	"boolean_values", "location_values", "json_values", "blob_values",
	"labels", "sensors",
	"strings_values_dictionary", "labels_name_dictionary", "labels_description_dictionary",
	"units",
}

func (s *Storage) Close() error {
	return s.conn.Close()
}

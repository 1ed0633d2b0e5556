// Package duckdb implements the SensApp storage.Storage contract for
// the "duckdb:" connection-string scheme by embedding the SQLite
// backend outright. No DuckDB Go driver exists anywhere in the
// example pack, and the reference implementation treats DuckDB as "a
// DuckDB variant" of the same relational shape rather than a distinct
// wire protocol — so this package reuses internal/storage/sqlite's
// schema, dictionary interning, and query dialect unchanged, the same
// embedding technique internal/storage/timescaledb uses to reuse
// internal/storage/postgres.
package duckdb

import (
	"context"
	"strings"

	"github.com/sintef/sensapp-go/internal/storage"
	"github.com/sintef/sensapp-go/internal/storage/sqlite"
)

func init() {
	storage.Register("duckdb", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{Source: NormalizeSource(cs)})
	})
}

// Config configures a DuckDB-labelled Storage; Source is passed
// straight through to the embedded SQLite backend.
type Config struct {
	Source  string
	Pragmas sqlite.Pragmas
}

// Storage is internal/storage/sqlite's Storage under the "duckdb:"
// scheme name; every method is inherited unchanged.
type Storage struct {
	*sqlite.Storage
}

// IsSource reports whether connectionString names the duckdb backend.
func IsSource(connectionString string) bool {
	return strings.HasPrefix(connectionString, "duckdb:")
}

// NormalizeSource strips the duckdb: scheme prefix, leaving a DSN the
// embedded SQLite driver understands directly.
func NormalizeSource(connectionString string) string {
	return strings.TrimPrefix(connectionString, "duckdb:")
}

// New opens the embedded SQLite storage handle and brings its schema
// up to date.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	inner, err := sqlite.New(ctx, sqlite.Config{Source: cfg.Source, Pragmas: cfg.Pragmas})
	if err != nil {
		return nil, err
	}
	return &Storage{Storage: inner}, nil
}

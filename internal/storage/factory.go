package storage

import (
	"context"
	"strings"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

// SchemeDetector is implemented by each backend package: it reports
// whether a connection string names that backend.
type SchemeDetector func(connectionString string) bool

// Opener constructs a Storage for a connection string already known to
// match the backend's scheme.
type Opener func(ctx context.Context, connectionString string) (Storage, error)

type registration struct {
	name    string
	matches SchemeDetector
	open    Opener
}

var registry []registration

// Register adds a backend to the factory dispatch table. Called from
// each backend package's init(); Open walks the table in registration
// order, which is package initialisation order. No two backends'
// scheme detectors accept the same connection string, so that order
// does not affect which backend is chosen.
func Register(name string, matches SchemeDetector, open Opener) {
	registry = append(registry, registration{name: name, matches: matches, open: open})
}

// Open selects a backend by connection string scheme and opens it.
func Open(ctx context.Context, connectionString string) (Storage, error) {
	for _, r := range registry {
		if r.matches(connectionString) {
			return r.open(ctx, connectionString)
		}
	}
	return nil, datamodel.NewError(datamodel.ConfigError, "unrecognised storage connection string scheme: %q", schemeOf(connectionString))
}

func schemeOf(connectionString string) string {
	if idx := strings.Index(connectionString, ":"); idx >= 0 {
		return connectionString[:idx]
	}
	return connectionString
}

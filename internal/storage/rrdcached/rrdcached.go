// Package rrdcached implements the SensApp storage.Storage contract on
// top of rrdcached, the round-robin-database caching daemon. Unlike
// the relational backends it stores no series metadata: every sensor
// becomes its own RRD file keyed by UUID, holding a single "sensapp"
// gauge data source, created lazily on first publish (§9 RRDcached
// deviation notes).
package rrdcached

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

func init() {
	storage.Register("rrdcached", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		cfg, err := parseConnectionString(cs)
		if err != nil {
			return nil, err
		}
		return New(ctx, cfg)
	})
}

// Config configures a rrdcached-backed Storage.
type Config struct {
	// Addr is the rrdcached TCP endpoint, e.g. "127.0.0.1:42217".
	Addr string
	// Preset picks the round-robin archive layout for newly created
	// RRD files.
	Preset Preset
	// StepSeconds is the RRD base sampling interval; defaults to 10.
	StepSeconds int
	// HeartbeatSeconds is the RRD DS heartbeat; defaults to 20.
	HeartbeatSeconds int
}

func (c Config) withDefaults() Config {
	if c.StepSeconds == 0 {
		c.StepSeconds = 10
	}
	if c.HeartbeatSeconds == 0 {
		c.HeartbeatSeconds = 20
	}
	return c
}

// Storage implements storage.Storage against a single rrdcached
// daemon connection.
type Storage struct {
	cfg Config
	c   *client

	mu      sync.RWMutex
	created map[uuid.UUID]struct{}
}

// IsSource reports whether cs names the rrdcached backend.
func IsSource(cs string) bool {
	lower := strings.ToLower(cs)
	return strings.HasPrefix(lower, "rrdcached://") ||
		strings.HasPrefix(lower, "rrdcached+tcp://")
}

func parseConnectionString(cs string) (Config, error) {
	normalized := cs
	if strings.HasPrefix(strings.ToLower(cs), "rrdcached+tcp://") {
		normalized = "rrdcached://" + cs[len("rrdcached+tcp://"):]
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return Config{}, datamodel.WrapError(datamodel.ConfigError, err, "rrdcached: invalid connection string %q", cs)
	}
	if u.Host == "" {
		return Config{}, datamodel.NewError(datamodel.ConfigError, "rrdcached: connection string %q has no host:port", cs)
	}

	preset := Hoarder
	if v := u.Query().Get("preset"); v != "" {
		p, err := ParsePreset(v)
		if err != nil {
			return Config{}, datamodel.WrapError(datamodel.ConfigError, err, "rrdcached: invalid preset in %q", cs)
		}
		preset = p
	}

	return Config{Addr: u.Host, Preset: preset}, nil
}

// New dials cfg.Addr and returns a ready Storage. CreateOrMigrate is a
// no-op for this backend (RRD files are created lazily per sensor on
// first publish), but New still pings once to fail fast on a bad
// address.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, datamodel.NewError(datamodel.ConfigError, "rrdcached: Addr is empty")
	}
	c, err := dial(cfg.Addr)
	if err != nil {
		return nil, datamodel.WrapError(datamodel.Database, err, "rrdcached: connect to %s", cfg.Addr)
	}
	if err := c.ping(); err != nil {
		c.close()
		return nil, datamodel.WrapError(datamodel.Database, err, "rrdcached: ping %s", cfg.Addr)
	}
	return &Storage{
		cfg:     cfg,
		c:       c,
		created: make(map[uuid.UUID]struct{}),
	}, nil
}

// CreateOrMigrate is a no-op: RRD files are created lazily, one per
// sensor, the first time a sample is published for it.
func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	return nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.c.ping(); err != nil {
		return datamodel.WrapError(datamodel.Database, err, "rrdcached: health check")
	}
	return nil
}

// Vacuum is a no-op: rrdcached's RRD files are fixed-size ring buffers
// with nothing to compact.
func (s *Storage) Vacuum(ctx context.Context) error {
	return nil
}

// CleanupTestData forgets every RRD file this process has created, so
// the next publish recreates it. It does not and cannot delete the
// underlying .rrd files, which live outside rrdcached's protocol
// surface; tests against a real daemon should point Addr at a
// disposable base directory.
func (s *Storage) CleanupTestData(ctx context.Context) error {
	s.mu.Lock()
	s.created = make(map[uuid.UUID]struct{})
	s.mu.Unlock()
	return nil
}

// ListSeries is unsupported: rrdcached keeps no sensor metadata, only
// raw RRD files keyed by path, matching the reference implementation's
// "rrdcached doesn't support listing sensors".
func (s *Storage) ListSeries(ctx context.Context, metricFilter *string) ([]datamodel.Sensor, error) {
	return nil, datamodel.NewError(datamodel.OperationFailed, "rrdcached: listing series is not supported")
}

func (s *Storage) ListMetrics(ctx context.Context) ([]storage.Metric, error) {
	return nil, datamodel.NewError(datamodel.OperationFailed, "rrdcached: listing metrics is not supported")
}

func (s *Storage) QuerySensorData(ctx context.Context, id uuid.UUID, start, end *time.Time, limit *int64) (*storage.SensorData, error) {
	return nil, datamodel.NewError(datamodel.OperationFailed, "rrdcached: querying series data is not supported")
}

func (s *Storage) QuerySensorsByLabels(ctx context.Context, matchers []storage.LabelMatcher, start, end *time.Time, limit *int64, numericOnly bool) ([]storage.SensorData, error) {
	return nil, datamodel.NewError(datamodel.OperationFailed, "rrdcached: label queries are not supported")
}

func (s *Storage) Close() error {
	return s.c.close()
}

func (s *Storage) hasCreated(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.created[id]
	return ok
}

func (s *Storage) markCreated(id uuid.UUID) {
	s.mu.Lock()
	s.created[id] = struct{}{}
	s.mu.Unlock()
}

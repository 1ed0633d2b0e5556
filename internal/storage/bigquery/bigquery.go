// Package bigquery reserves the "bigquery:" connection-string scheme.
// No BigQuery Go client library appears anywhere in the example pack,
// and §1 treats BigQuery as an "external collaborator" whose interface
// is fixed but whose implementation is out of scope for this module —
// so this package is a stub: every operation fails fast with a
// ConfigError naming the missing driver, rather than fabricating a
// client library that was never grounded in the corpus.
package bigquery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

func init() {
	storage.Register("bigquery", IsSource, func(ctx context.Context, cs string) (storage.Storage, error) {
		return New(ctx, Config{ProjectDataset: NormalizeSource(cs)})
	})
}

// Config names the BigQuery project/dataset a connection string
// selects. It is retained on Storage purely so the ConfigError raised
// by every operation can name what the caller tried to reach.
type Config struct {
	ProjectDataset string
}

// Storage is a non-functional placeholder satisfying storage.Storage.
type Storage struct {
	cfg Config
}

// IsSource reports whether connectionString names the bigquery
// backend.
func IsSource(connectionString string) bool {
	return strings.HasPrefix(connectionString, "bigquery:")
}

// NormalizeSource strips the bigquery: scheme prefix.
func NormalizeSource(connectionString string) string {
	return strings.TrimPrefix(connectionString, "bigquery:")
}

// New always returns a ConfigError: no BigQuery client library is
// available to actually connect with.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	return nil, unsupported(cfg.ProjectDataset)
}

func unsupported(projectDataset string) error {
	return datamodel.NewError(datamodel.ConfigError,
		"bigquery: backend %q is not implemented: no BigQuery Go client library is wired into this module", projectDataset)
}

func (s *Storage) CreateOrMigrate(ctx context.Context) error {
	return unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) Publish(ctx context.Context, b batch.Batch) error {
	return unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) ListSeries(ctx context.Context, metricFilter *string) ([]datamodel.Sensor, error) {
	return nil, unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) ListMetrics(ctx context.Context) ([]storage.Metric, error) {
	return nil, unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) QuerySensorData(ctx context.Context, id uuid.UUID, start, end *time.Time, limit *int64) (*storage.SensorData, error) {
	return nil, unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) QuerySensorsByLabels(ctx context.Context, matchers []storage.LabelMatcher, start, end *time.Time, limit *int64, numericOnly bool) ([]storage.SensorData, error) {
	return nil, unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	return unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) Vacuum(ctx context.Context) error {
	return unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) CleanupTestData(ctx context.Context) error {
	return unsupported(s.cfg.ProjectDataset)
}

func (s *Storage) Close() error {
	return nil
}

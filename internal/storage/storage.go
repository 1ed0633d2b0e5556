// Package storage defines the backend-agnostic contract every relational
// (and non-relational) SensApp storage backend implements (§4.4, C5).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// DefaultQueryLimit is the sample-count ceiling applied when a caller
// does not specify one (§4.4).
const DefaultQueryLimit int64 = 10_000_000

// MatcherKind is one of the four label/name matcher operators (§4.5.4).
type MatcherKind int

const (
	Equal MatcherKind = iota
	NotEqual
	RegexMatch
	RegexNotMatch
)

// LabelMatcher is a single predicate on a sensor's name (when Name is
// "__name__") or on one of its labels.
type LabelMatcher struct {
	Name  string
	Value string
	Kind  MatcherKind
}

// Metric is a rollup over all series sharing a name: its declared type
// and unit, how many series exist, and which label keys appear across
// them (§4.4).
type Metric struct {
	Name        string
	Type        datamodel.SensorType
	Unit        *datamodel.Unit
	SeriesCount int64
	LabelKeys   []string
}

// SensorData pairs a sensor descriptor with the samples fetched for it.
type SensorData struct {
	Sensor  datamodel.Sensor
	Samples datamodel.TypedSamples
}

// Storage is the capability set every backend realizes: migrate,
// publish, list, query, health, vacuum, and a test-only cleanup hook.
type Storage interface {
	// CreateOrMigrate brings the schema up to date; idempotent.
	CreateOrMigrate(ctx context.Context) error

	// Publish writes one Batch, applying a per-sensor-batch atomic
	// write for each SingleSensorBatch it contains (§4.4).
	Publish(ctx context.Context, b batch.Batch) error

	// ListSeries returns every sensor, or only those whose name equals
	// *metricFilter when non-nil. Ordered by UUID ascending.
	ListSeries(ctx context.Context, metricFilter *string) ([]datamodel.Sensor, error)

	// ListMetrics returns one Metric rollup per distinct sensor name.
	ListMetrics(ctx context.Context) ([]Metric, error)

	// QuerySensorData fetches one series by UUID within [start, end]
	// (either bound optional), up to limit samples (defaults to
	// DefaultQueryLimit), timestamp ascending. Returns a SensorNotFound
	// error if the UUID is unknown.
	QuerySensorData(ctx context.Context, id uuid.UUID, start, end *time.Time, limit *int64) (*SensorData, error)

	// QuerySensorsByLabels resolves sensors matching matchers and
	// fetches their samples in the given window. Sensors with no
	// samples in the window still appear, with an empty TypedSamples
	// of their declared kind (§4.5.5, P8).
	QuerySensorsByLabels(ctx context.Context, matchers []LabelMatcher, start, end *time.Time, limit *int64, numericOnly bool) ([]SensorData, error)

	// HealthCheck pings the backend.
	HealthCheck(ctx context.Context) error

	// Vacuum triggers backend-defined compaction; may be a no-op.
	Vacuum(ctx context.Context) error

	// CleanupTestData truncates all user tables in FK-safe order and
	// clears in-process caches. Test-only.
	CleanupTestData(ctx context.Context) error

	// Close releases the backend's connection pool.
	Close() error
}

package postgres

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

// These tests exercise a real PostgreSQL instance and are skipped
// unless SENSAPP_POSTGRES_TEST_DSN points at one. CleanupTestData
// gives each test a blank slate without requiring a fresh container
// per test.
func init() {
	datamodel.InitSalt("sensapp postgres tests")
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("SENSAPP_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("SENSAPP_POSTGRES_TEST_DSN is not set; skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, Config{ConnString: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.CleanupTestData(ctx); err != nil {
		s.Close()
		t.Fatalf("CleanupTestData (pre-test): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSensor(t *testing.T, name string, kind datamodel.SensorType, labels ...datamodel.Label) datamodel.Sensor {
	t.Helper()
	sensor, err := datamodel.NewSensorWithoutUUID(name, kind, nil, labels)
	if err != nil {
		t.Fatalf("NewSensorWithoutUUID(%s): %v", name, err)
	}
	return sensor
}

func publishOne(t *testing.T, s *Storage, sensor datamodel.Sensor, samples datamodel.TypedSamples) {
	t.Helper()
	b := batch.Batch{Items: []*batch.SingleSensorBatch{batch.NewSingleSensorBatch(sensor, samples)}}
	if err := s.Publish(context.Background(), b); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestCreateOrMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	if err := s.CreateOrMigrate(context.Background()); err != nil {
		t.Fatalf("second CreateOrMigrate: %v", err)
	}
}

func TestPublishAndQuerySensorDataIntegerRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sensor := mustSensor(t, "temperature", datamodel.Integer, datamodel.Label{Key: "room", Value: "kitchen"})
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	samples := datamodel.NewIntegerSamples(
		datamodel.Sample[int64]{Time: t1, Value: 21},
		datamodel.Sample[int64]{Time: t2, Value: 22},
	)
	publishOne(t, s, sensor, samples)

	got, err := s.QuerySensorData(ctx, sensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("QuerySensorData: %v", err)
	}
	if got.Sensor.Name != "temperature" {
		t.Fatalf("sensor name = %q", got.Sensor.Name)
	}
	if len(got.Sensor.Labels) != 1 || got.Sensor.Labels[0].Key != "room" {
		t.Fatalf("labels mismatch: %#v", got.Sensor.Labels)
	}
	ints, ok := got.Samples.(datamodel.IntegerSamples)
	if !ok {
		t.Fatalf("samples type = %T", got.Samples)
	}
	if len(ints) != 2 || ints[0].Value != 21 || ints[1].Value != 22 {
		t.Fatalf("unexpected samples: %#v", ints)
	}
}

func TestQuerySensorDataUnknownSensorReturnsSensorNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.QuerySensorData(context.Background(), mustSensor(t, "ghost", datamodel.Integer).UUID, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown sensor")
	}
	if kind, ok := datamodel.KindOf(err); !ok || kind != datamodel.SensorNotFound {
		t.Fatalf("expected SensorNotFound, got %v (ok=%v)", err, ok)
	}
}

func TestPublishFloatKeepsNaNAndInf(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sensor := mustSensor(t, "voltage", datamodel.Float)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := datamodel.NewFloatSamples(
		datamodel.Sample[float64]{Time: t1, Value: 3.3},
		datamodel.Sample[float64]{Time: t1.Add(time.Second), Value: math.NaN()},
		datamodel.Sample[float64]{Time: t1.Add(2 * time.Second), Value: math.Inf(1)},
	)
	publishOne(t, s, sensor, samples)

	got, err := s.QuerySensorData(ctx, sensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("QuerySensorData: %v", err)
	}
	floats := got.Samples.(datamodel.FloatSamples)
	if len(floats) != 3 {
		t.Fatalf("expected all 3 samples to survive on PostgreSQL, got %#v", floats)
	}
	if floats[0].Value != 3.3 {
		t.Fatalf("first sample mismatch: %#v", floats[0])
	}
	if !math.IsNaN(floats[1].Value) {
		t.Fatalf("expected NaN to round trip, got %v", floats[1].Value)
	}
	if !math.IsInf(floats[2].Value, 1) {
		t.Fatalf("expected +Inf to round trip, got %v", floats[2].Value)
	}
}

func TestPublishNumericLocationJSONAndBlob(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ts := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	numSensor := mustSensor(t, "price", datamodel.Numeric)
	publishOne(t, s, numSensor, datamodel.NewNumericSamples(
		datamodel.Sample[decimal.Decimal]{Time: ts, Value: decimal.RequireFromString("19.99")},
	))
	numGot, err := s.QuerySensorData(ctx, numSensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("query numeric: %v", err)
	}
	numSamples := numGot.Samples.(datamodel.NumericSamples)
	if len(numSamples) != 1 || !numSamples[0].Value.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("numeric round trip mismatch: %#v", numSamples)
	}

	locSensor := mustSensor(t, "gps", datamodel.Location)
	publishOne(t, s, locSensor, datamodel.NewLocationSamples(
		datamodel.Sample[orb.Point]{Time: ts, Value: orb.Point{10.5, 59.9}},
	))
	locGot, err := s.QuerySensorData(ctx, locSensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("query location: %v", err)
	}
	locSamples := locGot.Samples.(datamodel.LocationSamples)
	if len(locSamples) != 1 || locSamples[0].Value.X() != 10.5 || locSamples[0].Value.Y() != 59.9 {
		t.Fatalf("location round trip mismatch: %#v", locSamples)
	}

	jsonSensor := mustSensor(t, "payload", datamodel.Json)
	publishOne(t, s, jsonSensor, datamodel.NewJSONSamples(
		datamodel.Sample[json.RawMessage]{Time: ts, Value: json.RawMessage(`{"a":1}`)},
	))
	jsonGot, err := s.QuerySensorData(ctx, jsonSensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("query json: %v", err)
	}
	jsonSamples := jsonGot.Samples.(datamodel.JSONSamples)
	// JSONB stores parsed JSON and prints it back in its own form, with a
	// space after each colon.
	if len(jsonSamples) != 1 || string(jsonSamples[0].Value) != `{"a": 1}` {
		t.Fatalf("json round trip mismatch: %#v", jsonSamples)
	}

	blobSensor := mustSensor(t, "firmware", datamodel.Blob)
	publishOne(t, s, blobSensor, datamodel.NewBlobSamples(
		datamodel.Sample[[]byte]{Time: ts, Value: []byte{0x01, 0x02, 0x03}},
	))
	blobGot, err := s.QuerySensorData(ctx, blobSensor.UUID, nil, nil, nil)
	if err != nil {
		t.Fatalf("query blob: %v", err)
	}
	blobSamples := blobGot.Samples.(datamodel.BlobSamples)
	if len(blobSamples) != 1 || string(blobSamples[0].Value) != "\x01\x02\x03" {
		t.Fatalf("blob round trip mismatch: %#v", blobSamples)
	}
}

func TestQuerySensorsByLabelsMatchersAndEmptySeries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	kitchen := mustSensor(t, "temperature", datamodel.Integer, datamodel.Label{Key: "room", Value: "kitchen"})
	hallway := mustSensor(t, "temperature", datamodel.Integer, datamodel.Label{Key: "room", Value: "hallway"})
	noSamples := mustSensor(t, "temperature", datamodel.Integer, datamodel.Label{Key: "room", Value: "attic"})

	publishOne(t, s, kitchen, datamodel.NewIntegerSamples(datamodel.Sample[int64]{Time: ts, Value: 21}))
	publishOne(t, s, hallway, datamodel.NewIntegerSamples(datamodel.Sample[int64]{Time: ts, Value: 18}))
	publishOne(t, s, noSamples, datamodel.EmptyOfKind(datamodel.Integer))

	matchers := []storage.LabelMatcher{
		{Name: "__name__", Kind: storage.Equal, Value: "temperature"},
		{Name: "room", Kind: storage.RegexMatch, Value: "kitchen|attic"},
	}
	results, err := s.QuerySensorsByLabels(ctx, matchers, nil, nil, nil, false)
	if err != nil {
		t.Fatalf("QuerySensorsByLabels: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matched series, got %d: %#v", len(results), results)
	}

	byRoom := map[string]storage.SensorData{}
	for _, r := range results {
		for _, l := range r.Sensor.Labels {
			if l.Key == "room" {
				byRoom[l.Value] = r
			}
		}
	}
	if kitchenResult, ok := byRoom["kitchen"]; !ok || kitchenResult.Samples.Len() != 1 {
		t.Fatalf("kitchen result missing or wrong length: %#v", kitchenResult)
	}
	if atticResult, ok := byRoom["attic"]; !ok || atticResult.Samples.Len() != 0 {
		t.Fatalf("attic result should be present with zero samples: %#v", atticResult)
	}
	if _, ok := byRoom["hallway"]; ok {
		t.Fatal("hallway should have been excluded by the regex matcher")
	}
}

func TestListMetricsAggregatesAcrossSeries(t *testing.T) {
	s := newTestStorage(t)
	ts := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)

	a := mustSensor(t, "humidity", datamodel.Float, datamodel.Label{Key: "room", Value: "a"})
	b := mustSensor(t, "humidity", datamodel.Float, datamodel.Label{Key: "room", Value: "b"}, datamodel.Label{Key: "floor", Value: "2"})
	publishOne(t, s, a, datamodel.NewFloatSamples(datamodel.Sample[float64]{Time: ts, Value: 50.0}))
	publishOne(t, s, b, datamodel.NewFloatSamples(datamodel.Sample[float64]{Time: ts, Value: 55.0}))

	metrics, err := s.ListMetrics(context.Background())
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric rollup, got %d: %#v", len(metrics), metrics)
	}
	m := metrics[0]
	if m.Name != "humidity" || m.SeriesCount != 2 {
		t.Fatalf("unexpected metric rollup: %#v", m)
	}
	if len(m.LabelKeys) != 2 || m.LabelKeys[0] != "floor" || m.LabelKeys[1] != "room" {
		t.Fatalf("unexpected label key union: %#v", m.LabelKeys)
	}
}

func TestCleanupTestDataReseedsCommonUnitsAndClearsCaches(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sensor := mustSensor(t, "pressure", datamodel.Integer)
	publishOne(t, s, sensor, datamodel.NewIntegerSamples(datamodel.Sample[int64]{Time: time.Now().UTC(), Value: 1013}))

	if err := s.CleanupTestData(ctx); err != nil {
		t.Fatalf("CleanupTestData: %v", err)
	}

	if _, err := s.QuerySensorData(ctx, sensor.UUID, nil, nil, nil); err == nil {
		t.Fatal("expected sensor to be gone after cleanup")
	}

	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM units").Scan(&count); err != nil {
		t.Fatalf("count units: %v", err)
	}
	if count != len(commonUnits) {
		t.Fatalf("expected %d reseeded units, got %d", len(commonUnits), count)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStorage(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

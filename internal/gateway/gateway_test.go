package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

func init() {
	datamodel.InitSalt("sensapp gateway tests")
}

// fakeStorage is a minimal in-memory storage.Storage double, enough
// to drive the gateway's ingest/query/health endpoints without a real
// backend.
type fakeStorage struct {
	mu      sync.Mutex
	byUUID  map[uuid.UUID]*storage.SensorData
	healthy bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{byUUID: map[uuid.UUID]*storage.SensorData{}, healthy: true}
}

func (f *fakeStorage) CreateOrMigrate(ctx context.Context) error { return nil }

func (f *fakeStorage) Publish(ctx context.Context, b batch.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range b.Items {
		sensor := item.Sensor()
		existing, ok := f.byUUID[sensor.UUID]
		if !ok {
			f.byUUID[sensor.UUID] = &storage.SensorData{Sensor: sensor, Samples: item.Samples()}
			continue
		}
		existing.Samples = appendSamples(existing.Samples, item.Samples())
	}
	return nil
}

func appendSamples(a, b datamodel.TypedSamples) datamodel.TypedSamples {
	switch av := a.(type) {
	case datamodel.IntegerSamples:
		return append(av, b.(datamodel.IntegerSamples)...)
	case datamodel.FloatSamples:
		return append(av, b.(datamodel.FloatSamples)...)
	case datamodel.StringSamples:
		return append(av, b.(datamodel.StringSamples)...)
	case datamodel.BooleanSamples:
		return append(av, b.(datamodel.BooleanSamples)...)
	default:
		return a
	}
}

func (f *fakeStorage) ListSeries(ctx context.Context, metricFilter *string) ([]datamodel.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []datamodel.Sensor
	for _, sd := range f.byUUID {
		if metricFilter != nil && sd.Sensor.Name != *metricFilter {
			continue
		}
		out = append(out, sd.Sensor)
	}
	return out, nil
}

func (f *fakeStorage) ListMetrics(ctx context.Context) ([]storage.Metric, error) {
	return nil, nil
}

func (f *fakeStorage) QuerySensorData(ctx context.Context, id uuid.UUID, start, end *time.Time, limit *int64) (*storage.SensorData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sd, ok := f.byUUID[id]
	if !ok {
		return nil, datamodel.NewError(datamodel.SensorNotFound, "sensor %s not found", id)
	}
	return sd, nil
}

func (f *fakeStorage) QuerySensorsByLabels(ctx context.Context, matchers []storage.LabelMatcher, start, end *time.Time, limit *int64, numericOnly bool) ([]storage.SensorData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var name string
	for _, m := range matchers {
		if m.Name == "__name__" {
			name = m.Value
		}
	}
	var out []storage.SensorData
	for _, sd := range f.byUUID {
		if name != "" && sd.Sensor.Name != name {
			continue
		}
		out = append(out, *sd)
	}
	return out, nil
}

func (f *fakeStorage) HealthCheck(ctx context.Context) error {
	if !f.healthy {
		return datamodel.NewError(datamodel.Database, "backend unreachable")
	}
	return nil
}

func (f *fakeStorage) Vacuum(ctx context.Context) error          { return nil }
func (f *fakeStorage) CleanupTestData(ctx context.Context) error { return nil }
func (f *fakeStorage) Close() error                              { return nil }

func TestHandleWriteCSVThenQuerySeriesAndByID(t *testing.T) {
	st := newFakeStorage()
	srv := NewServer(st, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := "timestamp,value\n2024-01-01T00:00:00Z,23.5\n2024-01-01T00:01:00Z,24.0\n"
	resp, err := http.Post(ts.URL+"/api/write/csv?sensor=temp1", "text/csv", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	seriesResp, err := http.Get(ts.URL + "/api/series")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	defer seriesResp.Body.Close()
	var sensors []datamodel.Sensor
	if err := json.NewDecoder(seriesResp.Body).Decode(&sensors); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if len(sensors) != 1 || sensors[0].Name != "temp1" {
		t.Fatalf("sensors = %+v", sensors)
	}

	byIDResp, err := http.Get(ts.URL + "/api/series/" + sensors[0].UUID.String() + "?format=csv")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	defer byIDResp.Body.Close()
	if byIDResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", byIDResp.StatusCode)
	}
}

func TestHandleSeriesByIDUnknownUUIDReturns404(t *testing.T) {
	st := newFakeStorage()
	srv := NewServer(st, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/series/" + uuid.New().String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleSeriesByIDMalformedUUIDReturns400(t *testing.T) {
	st := newFakeStorage()
	srv := NewServer(st, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/series/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleHealthzReportsBackendFailureAs500(t *testing.T) {
	st := newFakeStorage()
	st.healthy = false
	srv := NewServer(st, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleQueryRequiresAMatcher(t *testing.T) {
	st := newFakeStorage()
	srv := NewServer(st, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/query")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestParseSelectorNameOnly(t *testing.T) {
	ms, err := parseSelector("cpu_usage")
	if err != nil {
		t.Fatalf("parseSelector: %v", err)
	}
	if len(ms) != 1 || ms[0].Name != "__name__" || ms[0].Value != "cpu_usage" || ms[0].Kind != storage.Equal {
		t.Fatalf("matchers = %+v", ms)
	}
}

func TestParseSelectorNameWithLabelMatchers(t *testing.T) {
	ms, err := parseSelector(`cpu_usage{host="a1",env!="prod"}`)
	if err != nil {
		t.Fatalf("parseSelector: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("got %d matchers, want 3: %+v", len(ms), ms)
	}
	if ms[1].Name != "host" || ms[1].Value != "a1" || ms[1].Kind != storage.Equal {
		t.Errorf("host matcher = %+v", ms[1])
	}
	if ms[2].Name != "env" || ms[2].Value != "prod" || ms[2].Kind != storage.NotEqual {
		t.Errorf("env matcher = %+v", ms[2])
	}
}

func TestParseSelectorRegexMatchers(t *testing.T) {
	ms, err := parseSelector(`{region=~"eu-.*",zone!~"^us"}`)
	if err != nil {
		t.Fatalf("parseSelector: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d matchers, want 2", len(ms))
	}
	if ms[0].Kind != storage.RegexMatch || ms[1].Kind != storage.RegexNotMatch {
		t.Fatalf("matchers = %+v", ms)
	}
}

func TestParseSelectorRejectsMissingBrace(t *testing.T) {
	if _, err := parseSelector(`cpu_usage{host="a1"`); err == nil {
		t.Fatal("expected error for unclosed brace")
	}
}

func TestParseSelectorRejectsEmpty(t *testing.T) {
	if _, err := parseSelector(`{}`); err == nil {
		t.Fatal("expected error for empty selector")
	}
}

func TestParseSelectorRejectsUnquotedValue(t *testing.T) {
	if _, err := parseSelector(`cpu_usage{host=a1}`); err == nil {
		t.Fatal("expected error for unquoted value")
	}
}

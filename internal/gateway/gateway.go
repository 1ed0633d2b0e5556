// Package gateway implements the HTTP front door (§4.8, C9): a
// stdlib net/http.ServeMux exposing write endpoints for every
// ingestion adapter, a catalog/query surface backed by Storage, and
// a health check, following the teacher's internal/api.Server shape
// (route-table-as-slice, withCORS, graceful Listen(ctx) shutdown) but
// generalized from playback-job control to sensor ingest and query.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/export"
	arrowingest "github.com/sintef/sensapp-go/internal/ingest/arrow"
	csvingest "github.com/sintef/sensapp-go/internal/ingest/csv"
	"github.com/sintef/sensapp-go/internal/ingest/influx"
	"github.com/sintef/sensapp-go/internal/ingest/promremote"
	senmlingest "github.com/sintef/sensapp-go/internal/ingest/senml"
	"github.com/sintef/sensapp-go/internal/storage"
)

// Config carries the gateway's tunables (§6.2): a request body cap
// enforced via http.MaxBytesReader, the BatchBuilder flush threshold
// handed to every write endpoint, and the row cap applied to CSV
// ingest's type-inference pass.
type Config struct {
	BodyLimit        int64
	BatchSize        int
	MaxInferenceRows int
}

// ingestFunc is the signature every adapter in internal/ingest/*
// shares: decode r into sensors/samples and hand them to bb, which
// flushes full chunks through pub as it goes.
type ingestFunc func(ctx context.Context, r io.Reader, bb *batch.BatchBuilder, pub batch.Publisher) error

// Server is the gateway: Storage plus the config needed to drive
// ingest and export.
type Server struct {
	storage storage.Storage
	cfg     Config
	mux     *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(st storage.Storage, cfg Config) *Server {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8192
	}
	if cfg.MaxInferenceRows <= 0 {
		cfg.MaxInferenceRows = csvingest.DefaultMaxInferenceRows
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 10 << 20
	}
	s := &Server{storage: st, cfg: cfg}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// Handler returns the gateway's http.Handler, for tests or for
// embedding behind another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Listen starts the server on addr and blocks until ctx is cancelled,
// then shuts it down gracefully, mirroring the teacher's
// internal/api.Server.Listen.
func (s *Server) Listen(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() {
	writeRoutes := []struct {
		path   string
		ingest ingestFunc
	}{
		{"/api/write/influx", influx.Ingest},
		{"/api/write/prometheus", promremote.Ingest},
		{"/api/write/senml", senmlingest.Ingest},
		{"/api/write/arrow", arrowingest.Ingest},
	}
	for _, wr := range writeRoutes {
		s.mux.Handle(wr.path, s.withCORS(s.handleWrite(wr.ingest)))
	}
	s.mux.Handle("/api/write/csv", s.withCORS(s.handleWriteCSV()))

	apiRoutes := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/api/series", s.handleSeries},
		{"/api/metrics", s.handleMetrics},
		{"/api/series/", s.handleSeriesByID},
		{"/api/query", s.handleQuery},
		{"/healthz", s.handleHealthz},
	}
	for _, route := range apiRoutes {
		s.mux.Handle(route.path, s.withCORS(route.handler))
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWrite adapts one internal/ingest/*.Ingest function into a
// POST handler: body is size-capped, a fresh BatchBuilder accumulates
// samples as the adapter decodes, and whatever remains unflushed at
// EOF is sent before responding.
func (s *Server) handleWrite(ingest ingestFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body := http.MaxBytesReader(w, r.Body, s.cfg.BodyLimit)
		defer body.Close()

		bb := batch.NewBatchBuilder(s.cfg.BatchSize)
		if err := ingest(r.Context(), body, bb, s.storage); err != nil {
			writeError(w, err)
			return
		}
		if _, err := bb.SendWhatIsLeft(r.Context(), s.storage); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
	}
}

// handleWriteCSV is split out from handleWrite because csv.Ingest
// additionally needs a default sensor name (for single-sensor long
// format with no sensor_name/sensor_uuid column) and the configured
// type-inference row cap.
func (s *Server) handleWriteCSV() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body := http.MaxBytesReader(w, r.Body, s.cfg.BodyLimit)
		defer body.Close()

		defaultName := r.URL.Query().Get("sensor")
		bb := batch.NewBatchBuilder(s.cfg.BatchSize)
		if err := csvingest.Ingest(r.Context(), body, bb, s.storage, defaultName, s.cfg.MaxInferenceRows); err != nil {
			writeError(w, err)
			return
		}
		if _, err := bb.SendWhatIsLeft(r.Context(), s.storage); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
	}
}

// handleSeries lists the catalog (GET /api/series?metric=...).
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var metricFilter *string
	if m := r.URL.Query().Get("metric"); m != "" {
		metricFilter = &m
	}
	sensors, err := s.storage.ListSeries(r.Context(), metricFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

// handleMetrics lists the metric rollups (GET /api/metrics).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	metrics, err := s.storage.ListMetrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleSeriesByID fetches one series by UUID and encodes it in the
// requested format (GET /api/series/{uuid}?start=&end=&limit=&format=).
func (s *Server) handleSeriesByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/series/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, datamodel.WrapError(datamodel.InvalidDataFormat, err, "gateway: invalid sensor uuid %q", idStr))
		return
	}

	start, end, err := parseTimeWindow(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	sd, err := s.storage.QuerySensorData(r.Context(), id, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	body, contentType, err := encodeOne(*sd, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleQuery resolves a restricted-PromQL selector set (GET
// /api/query?match[]=name{label="value"}&numeric_only=&format=).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	selectors := query["match[]"]
	if len(selectors) == 0 {
		if single := query.Get("match"); single != "" {
			selectors = []string{single}
		}
	}
	if len(selectors) == 0 {
		writeError(w, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: query requires at least one match[] selector"))
		return
	}

	var matchers []storage.LabelMatcher
	for _, sel := range selectors {
		ms, err := parseSelector(sel)
		if err != nil {
			writeError(w, err)
			return
		}
		matchers = append(matchers, ms...)
	}

	start, end, err := parseTimeWindow(query)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(query)
	if err != nil {
		writeError(w, err)
		return
	}
	numericOnly := query.Get("numeric_only") == "true" || query.Get("numeric_only") == "1"

	sds, err := s.storage.QuerySensorsByLabels(r.Context(), matchers, start, end, limit, numericOnly)
	if err != nil {
		writeError(w, err)
		return
	}

	body, contentType, err := encodeMany(sds, query.Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleHealthz pings the backend (GET /healthz).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.storage.HealthCheck(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseTimeWindow(q map[string][]string) (start, end *time.Time, err error) {
	if v := first(q, "start"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, datamodel.WrapError(datamodel.InvalidDataFormat, perr, "gateway: invalid start %q", v)
		}
		start = &t
	}
	if v := first(q, "end"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, datamodel.WrapError(datamodel.InvalidDataFormat, perr, "gateway: invalid end %q", v)
		}
		end = &t
	}
	return start, end, nil
}

func parseLimit(q map[string][]string) (*int64, error) {
	v := first(q, "limit")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: invalid limit %q", v)
	}
	return &n, nil
}

func first(q map[string][]string, key string) string {
	vs := q[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func encodeOne(sd storage.SensorData, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", "senml":
		b, err := export.SenML(sd)
		return b, "application/json", err
	case "csv":
		b, err := export.SingleSensorCSV(sd)
		return b, "text/csv", err
	case "jsonl":
		b, err := export.JSONL(sd)
		return b, "application/x-ndjson", err
	case "arrow":
		b, err := export.Arrow(sd)
		return b, "application/octet-stream", err
	default:
		return nil, "", datamodel.NewError(datamodel.InvalidDataFormat, "gateway: unknown export format %q", format)
	}
}

func encodeMany(sds []storage.SensorData, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", "senml":
		b, err := export.MultiSenML(sds)
		return b, "application/json", err
	case "csv":
		b, err := export.MultiSensorCSV(sds)
		return b, "text/csv", err
	case "jsonl":
		b, err := export.MultiJSONL(sds)
		return b, "application/x-ndjson", err
	case "arrow":
		b, err := export.MultiArrow(sds)
		return b, "application/octet-stream", err
	default:
		return nil, "", datamodel.NewError(datamodel.InvalidDataFormat, "gateway: unknown export format %q", format)
	}
}

// writeError maps err's datamodel.ErrorKind onto the user-visible
// status table (§7): not-found kinds to 404, caller-input kinds to
// 400, everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := datamodel.KindOf(err); ok {
		switch kind {
		case datamodel.SensorNotFound, datamodel.MetricNotFound:
			status = http.StatusNotFound
		case datamodel.InvalidName, datamodel.InvalidDataFormat, datamodel.MissingRequiredField, datamodel.ConfigError:
			status = http.StatusBadRequest
		}
	}
	log.Printf("[gateway] error (status %d): %v", status, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/dac/internal/backup"
	"github.com/koustreak/dac/internal/dbstatus"
	"github.com/koustreak/dac/internal/errs"
	"github.com/koustreak/dac/internal/metrics"
	"github.com/koustreak/dac/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	rec   *dbstatus.Record
	err   error
	calls atomic.Int32
}

func (f *fakeStatus) Status(context.Context) (*dbstatus.Record, error) {
	f.calls.Add(1)
	return f.rec, f.err
}

type fakeBackups struct {
	inv *backup.Inventory
	err error
}

func (f *fakeBackups) Inventory(context.Context) (*backup.Inventory, error) {
	return f.inv, f.err
}

func sampleRecord() *dbstatus.Record {
	return &dbstatus.Record{
		Connected:  true,
		Version:    "PostgreSQL 15.1",
		User:       "dac",
		Database:   "dac_db",
		ServerTime: "2024-01-01T00:00:00Z",
		Uptime:     "1 d 02:00:00",
		Totals: dbstatus.Totals{
			Tables:      12,
			Indexes:     20,
			Connections: 3,
			DBBytes:     104857600,
			TablesBytes: 52428800,
		},
		TopTables: []dbstatus.TopTable{{Name: "individuos", TotalBytes: 20971520}},
	}
}

type fixture struct {
	server  *Server
	metrics *metrics.Collector

	mu       sync.Mutex
	requests []*http.Request // seen by the upstream stub
}

func (f *fixture) seen() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// newFixture starts an upstream stub backed by h (nil means unreachable).
func newFixture(t *testing.T, h http.HandlerFunc, status StatusSource, backups BackupSource) *fixture {
	t.Helper()
	f := &fixture{}

	var baseURL string
	if h == nil {
		srv := httptest.NewServer(http.NotFoundHandler())
		baseURL = srv.URL
		srv.Close()
	} else {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.requests = append(f.requests, r)
			f.mu.Unlock()
			h(w, r)
		}))
		t.Cleanup(srv.Close)
		baseURL = srv.URL
	}

	client, err := upstream.New(baseURL, 2*time.Second)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	f.metrics = metrics.NewWithRegistry(reg, reg)
	f.server = New(Options{
		Upstream:       client,
		Status:         status,
		Backups:        backups,
		Metrics:        f.metrics,
		RequestTimeout: 5 * time.Second,
	})
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestDBStatus_UpstreamVerbatim(t *testing.T) {
	const upstreamBody = `{"connected":true,"version":"PostgreSQL 16.0","extra":"kept"}`
	status := &fakeStatus{rec: sampleRecord()}
	f := newFixture(t, jsonBody(upstreamBody), status, nil)

	rec := f.get(t, "/api/db/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upstreamBody, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Zero(t, status.calls.Load(), "aggregator must not run when upstream answers")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DBStatusTotal.WithLabelValues(metrics.SourceUpstream)))
}

func TestDBStatus_FallbackWhenUnreachable(t *testing.T) {
	status := &fakeStatus{rec: sampleRecord()}
	f := newFixture(t, nil, status, nil)

	rec := f.get(t, "/api/db/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), status.calls.Load())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["connected"])
	assert.Equal(t, "PostgreSQL 15.1", got["version"])
	assert.Equal(t, float64(104857600), got["totals"].(map[string]any)["db_bytes"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DBStatusTotal.WithLabelValues(metrics.SourceAggregate)))
}

func TestDBStatus_FallbackOnUpstreamErrorStatus(t *testing.T) {
	status := &fakeStatus{rec: sampleRecord()}
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"db down"}`))
	}, status, nil)

	rec := f.get(t, "/api/db/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), status.calls.Load())
}

func TestDBStatus_FallbackOnInvalidBody(t *testing.T) {
	status := &fakeStatus{rec: sampleRecord()}
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}, status, nil)

	rec := f.get(t, "/api/db/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), status.calls.Load())
}

func TestDBStatus_BothFail(t *testing.T) {
	status := &fakeStatus{err: errs.New(errs.ErrKindQueryFailed, "permission denied for pg_stat_activity")}
	f := newFixture(t, nil, status, nil)

	rec := f.get(t, "/api/db/status")

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2, "failure carries only connected and error")
	assert.Equal(t, false, got["connected"])
	assert.Contains(t, got["error"], "permission denied for pg_stat_activity")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AggregationsTotal.WithLabelValues(metrics.OutcomeError)))
}

func TestDBStatus_NoDatabase(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	rec := f.get(t, "/api/db/status")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"connected":false,"error":"Falha ao obter status do banco"}`, rec.Body.String())
}

// flakyStatus fails until the catalog comes back.
type flakyStatus struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (f *flakyStatus) Status(context.Context) (*dbstatus.Record, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "scan failed",
			errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	}
	return sampleRecord(), nil
}

func TestDBStatus_RecoversWhenCatalogReturns(t *testing.T) {
	status := &flakyStatus{}
	status.down.Store(true)
	f := newFixture(t, nil, status, nil)

	rec := f.get(t, "/api/db/status")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var failure map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	assert.NotEqual(t, dbstatus.FallbackMessage, failure["error"])
	assert.Contains(t, failure["error"], "connection refused")

	status.down.Store(false)

	rec = f.get(t, "/api/db/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got dbstatus.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, int32(2), status.calls.Load())
}

func TestProxy_RelaysJSON(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/estatisticas/resumo":
			_, _ = w.Write([]byte(`{"total_individuos":1500,"total_domicilios":400}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
		}
	}, nil, nil)

	rec := f.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.get(t, "/api/estatisticas/resumo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_individuos":1500,"total_domicilios":400}`, rec.Body.String())

	for _, r := range f.seen() {
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))
	}
}

func TestProxy_UpstreamStatusPreserved(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"invalid regiao_id"}`))
	}, nil, nil)

	rec := f.get(t, "/api/individuos?regiao_id=x")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"detail":"invalid regiao_id"}`, rec.Body.String())
}

func TestProxy_Unavailable(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/health", `{"status":"error","message":"Backend indisponível"}`},
		{"/api/estatisticas/resumo", `{"message":"Backend indisponível"}`},
		{"/api/individuos", `{"message":"Backend indisponível"}`},
	}

	f := newFixture(t, nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.get(t, tt.path)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestProxy_NonJSONIsUnavailable(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`Internal Server Error`))
	}, nil, nil)

	rec := f.get(t, "/api/estatisticas/resumo")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"message":"Backend indisponível"}`, rec.Body.String())
}

func TestIndividuos_Forwarding(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  url.Values
	}{
		{
			name:  "defaults",
			query: "",
			want:  url.Values{"page": {"1"}, "limit": {"10"}},
		},
		{
			name:  "all filters",
			query: "?page=3&limit=25&regiao_id=4&idade=30&genero=F",
			want: url.Values{
				"page": {"3"}, "limit": {"25"},
				"regiao_id": {"4"}, "idade": {"30"}, "genero": {"F"},
			},
		},
		{
			name:  "empty filters dropped",
			query: "?regiao_id=&idade=&genero=M",
			want:  url.Values{"page": {"1"}, "limit": {"10"}, "genero": {"M"}},
		},
		{
			name:  "non numeric paging",
			query: "?page=abc&limit=",
			want:  url.Values{"page": {"1"}, "limit": {"10"}},
		},
		{
			name:  "trailing garbage in paging",
			query: "?page=12abc&limit=5x",
			want:  url.Values{"page": {"1"}, "limit": {"10"}},
		},
		{
			name:  "unknown params dropped",
			query: "?page=2&sort=nome",
			want:  url.Values{"page": {"2"}, "limit": {"10"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, jsonBody(`{"items":[],"total":0}`), nil, nil)

			rec := f.get(t, "/api/individuos"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			seen := f.seen()
			require.Len(t, seen, 1)
			assert.Equal(t, "/api/individuos", seen[0].URL.Path)
			assert.Equal(t, tt.want, seen[0].URL.Query())
		})
	}
}

func TestBackups(t *testing.T) {
	latest := time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC)
	inv := &backup.Inventory{
		TotalBackups: 1,
		TotalSize:    500,
		AverageSize:  500,
		LatestBackup: &latest,
		OldestBackup: &latest,
		Backups: []backup.Entry{
			{Filename: "dac_20240110.zip", Key: "dac_20240110.zip", Size: 500, Modified: latest},
		},
	}
	f := newFixture(t, jsonBody(`{}`), nil, &fakeBackups{inv: inv})

	rec := f.get(t, "/api/backups")
	require.Equal(t, http.StatusOK, rec.Code)

	var got backup.Inventory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalBackups)
	assert.Equal(t, "dac_20240110.zip", got.Backups[0].Filename)
}

func TestBackups_StorageError(t *testing.T) {
	f := newFixture(t, jsonBody(`{}`), nil, &fakeBackups{err: errors.New("bucket unreachable")})

	rec := f.get(t, "/api/backups")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"bucket unreachable"}`, rec.Body.String())
}

func TestBackups_NotMountedWithoutStorage(t *testing.T) {
	f := newFixture(t, jsonBody(`{}`), nil, nil)

	rec := f.get(t, "/api/backups")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	rec := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.get(t, "/api/health")

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dac_upstream_requests_total{outcome="error",path="/api/health"} 1`)
	assert.Contains(t, rec.Body.String(), `dac_http_requests_total{code="5xx",route="/api/health"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	f := newFixture(t, nil, &panicStatus{}, nil)

	rec := f.get(t, "/api/db/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicStatus struct{}

func (panicStatus) Status(context.Context) (*dbstatus.Record, error) {
	panic("catalog exploded")
}

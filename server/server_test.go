package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/internal/testutil"
	apiv1 "github.com/hrygo/mnemo/server/router/api/v1"
	"github.com/hrygo/mnemo/store"
)

func newTestServer(t *testing.T, st *store.Store, driver string) *Server {
	t.Helper()
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	svc := memory.NewService(st, memory.Options{Metrics: exporter})
	api := apiv1.NewAPIV1Service(svc, nil, nil, nil, nil)
	p := &profile.Profile{Mode: "dev", Driver: driver, Version: "test"}
	return NewServer(p, st, api, exporter, nil)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testutil.NewSQLiteStore(t, 8), "sqlite")

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"vector_search":true`)
	assert.Contains(t, rec.Body.String(), `"embedding_jobs"`)

	s = newTestServer(t, testutil.NewFileStore(t), "file")
	rec = get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vector_search":false`)
	assert.NotContains(t, rec.Body.String(), `"embedding_jobs"`)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, testutil.NewSQLiteStore(t, 8), "sqlite")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/alice/memory/daily", strings.NewReader(`{"content": "User prefers dark mode"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mnemo_memory_writes_total{category="daily",status="success"} 1`)
}

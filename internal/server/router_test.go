package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/koustreak/jobqueue/internal/logger"
	"github.com/koustreak/jobqueue/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	pingErr error
	stats   database.PoolStats
}

func (p *fakePool) Ping(context.Context) error  { return p.pingErr }
func (p *fakePool) Stats() database.PoolStats   { return p.stats }
func (p *fakePool) Settings() database.Settings { return database.PoolConfig{}.Resolve() }

func newTestRouter(t *testing.T, pool *fakePool) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.NewPoolCollector("jobs", pool)))
	return NewRouter(pool, reg, logger.New(&logger.Config{Level: "error", Output: io.Discard}))
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth_OK(t *testing.T) {
	rec := serve(newTestRouter(t, &fakePool{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_Unavailable(t *testing.T) {
	pool := &fakePool{pingErr: errs.New(errs.ErrKindTimeout, "ping failed")}

	rec := serve(newTestRouter(t, pool), "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "timeout", body.Kind)
}

func TestStats(t *testing.T) {
	pool := &fakePool{stats: database.PoolStats{MaxConns: 10, TotalConns: 2, IdleConns: 2, WaitDuration: time.Second}}

	rec := serve(newTestRouter(t, pool), "/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, pool.stats, body.Stats)
	assert.Equal(t, uint32(10), body.Settings.MaxConns)
	assert.Equal(t, uint32(1), body.Settings.MinConns)
	assert.Equal(t, 30.0, body.Settings.AcquireTimeoutSeconds)
	assert.Equal(t, 300.0, body.Settings.MaxLifetimeSeconds)
	assert.Equal(t, 60.0, body.Settings.IdleTimeoutSeconds)
}

func TestMetrics(t *testing.T) {
	pool := &fakePool{stats: database.PoolStats{MaxConns: 10, InUseConns: 3}}

	rec := serve(newTestRouter(t, pool), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `jobqueue_pool_in_use_connections{pool="jobs"} 3`), body)
	assert.True(t, strings.Contains(body, `jobqueue_pool_max_connections{pool="jobs"} 10`), body)
}

func TestNewRouter_NilLogger(t *testing.T) {
	pool := &fakePool{pingErr: errs.New(errs.ErrKindCanceled, "ping failed")}
	h := NewRouter(pool, prometheus.NewRegistry(), nil)

	rec := serve(h, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "canceled", body.Kind)
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(newTestRouter(t, &fakePool{}), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

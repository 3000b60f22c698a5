// Package server exposes a connection pool's health and usage over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/koustreak/jobqueue/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const pingTimeout = 2 * time.Second

// Pool is the part of a connector's pool the admin endpoints need.
type Pool interface {
	Ping(ctx context.Context) error
	Stats() database.PoolStats
	Settings() database.Settings
}

// Handler serves the admin endpoints for one pool.
type Handler struct {
	pool Pool
	log  *logger.Logger
}

// NewHandler returns a Handler for pool. A nil log discards output.
func NewHandler(pool Pool, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{pool: pool, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)
}

// NewRouter wires the admin endpoints plus /metrics for gatherer.
func NewRouter(pool Pool, gatherer prometheus.Gatherer, log *logger.Logger) http.Handler {
	h := NewHandler(pool, log)
	log = h.log

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	h.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type healthResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

type statsResponse struct {
	Stats    database.PoolStats `json:"stats"`
	Settings settingsResponse   `json:"settings"`
}

type settingsResponse struct {
	MaxConns              uint32  `json:"max_connections"`
	MinConns              uint32  `json:"min_connections"`
	AcquireTimeoutSeconds float64 `json:"acquire_timeout_seconds"`
	MaxLifetimeSeconds    float64 `json:"max_lifetime_seconds"`
	IdleTimeoutSeconds    float64 `json:"idle_timeout_seconds"`
}

// Health pings the pool and reports 200 or 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		h.log.WarnWith("health check failed", err, nil)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "unavailable",
			Kind:   errs.KindOf(err).String(),
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Stats reports the current usage snapshot and the resolved settings.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.pool.Settings()
	writeJSON(w, http.StatusOK, statsResponse{
		Stats: h.pool.Stats(),
		Settings: settingsResponse{
			MaxConns:              s.MaxConns,
			MinConns:              s.MinConns,
			AcquireTimeoutSeconds: s.AcquireTimeout.Seconds(),
			MaxLifetimeSeconds:    s.MaxLifetime.Seconds(),
			IdleTimeoutSeconds:    s.IdleTimeout.Seconds(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

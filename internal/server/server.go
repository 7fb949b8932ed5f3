// Package server is the HTTP boundary of the gateway: proxy routes to the
// backend API, database status with a local fallback, backup inventory,
// liveness and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/dac/internal/backup"
	"github.com/koustreak/dac/internal/dbstatus"
	"github.com/koustreak/dac/internal/logger"
	"github.com/koustreak/dac/internal/metrics"
	"github.com/koustreak/dac/internal/upstream"
)

// Upstream fetches a path from the backend API.
type Upstream interface {
	Get(ctx context.Context, path string, query url.Values) upstream.Result
}

// StatusSource produces a database status record locally.
type StatusSource interface {
	Status(ctx context.Context) (*dbstatus.Record, error)
}

// BackupSource produces the backup inventory.
type BackupSource interface {
	Inventory(ctx context.Context) (*backup.Inventory, error)
}

// Options configures a Server. Upstream is required; Status and Backups are
// optional.
type Options struct {
	Upstream Upstream
	// Status is the local fallback for /api/db/status. Nil means the
	// fallback always fails.
	Status StatusSource
	// Backups enables /api/backups when non-nil.
	Backups BackupSource

	Logger  *logger.Logger
	Metrics *metrics.Collector

	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// Server serves the gateway routes.
type Server struct {
	upstream Upstream
	status   StatusSource
	backups  BackupSource
	log      *logger.Logger
	metrics  *metrics.Collector
	router   chi.Router
	http     *http.Server
}

// New builds the router and the underlying http.Server.
func New(opts Options) *Server {
	s := &Server{
		upstream: opts.Upstream,
		status:   opts.Status,
		backups:  opts.Backups,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.router = s.routes(opts.RequestTimeout)
	s.http = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) routes(requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log, s.metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.proxy("/api/health", healthFallback, nil))
		r.Get("/estatisticas/resumo", s.proxy("/api/estatisticas/resumo", proxyFallback, nil))
		r.Get("/individuos", s.proxy("/api/individuos", proxyFallback, individuosQuery))
		r.Get("/db/status", s.handleDBStatus)
		if s.backups != nil {
			r.Get("/backups", s.handleBackups)
		}
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

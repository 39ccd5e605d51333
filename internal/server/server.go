// Package server hosts the genoroute HTTP surface: health probes, version,
// metrics and the event endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/internal/server/handlers"
	"github.com/3leaps/genoroute/internal/server/middleware"
)

// Timeouts applied to the underlying http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// DefaultTimeouts mirror the config defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{Read: 30 * time.Second, Write: 30 * time.Second, Idle: 120 * time.Second, Shutdown: 10 * time.Second}
}

// Server wraps a chi router and its http.Server.
type Server struct {
	host     string
	port     int
	router   chi.Router
	timeouts Timeouts
	logger   *zap.Logger
	http     *http.Server
}

// New builds a server with the standard middleware and probe routes.
func New(host string, port int) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(nil))
	r.Use(middleware.Metrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("route not found: "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("method "+req.Method+" not allowed on "+req.URL.Path))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	return &Server{
		host:     host,
		port:     port,
		router:   r,
		timeouts: DefaultTimeouts(),
		logger:   zap.NewNop(),
	}
}

func (s *Server) WithTimeouts(t Timeouts) *Server {
	s.timeouts = t
	return s
}

func (s *Server) WithLogger(l *zap.Logger) *Server {
	if l != nil {
		s.logger = l
	}
	return s
}

// MountAPI registers the event endpoints.
func (s *Server) MountAPI(api *handlers.API) {
	api.Mount(s.router)
}

// MountMetrics serves t on GET /metrics.
func (s *Server) MountMetrics(t *observability.Telemetry) {
	s.router.Method(http.MethodGet, "/metrics", t.Handler())
}

// MountProfiler serves net/http/pprof under /debug.
func (s *Server) MountProfiler() {
	s.router.Mount("/debug", chimw.Profiler())
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until the server is shut down. It returns nil
// after a clean shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}
	s.logger.Info("server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Shutdown)
	defer cancel()
	return s.http.Shutdown(ctx)
}

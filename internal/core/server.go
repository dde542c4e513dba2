// Package core provides the API chassis for astroscope. It builds a chi router
// usable both by net/http (local and container deployments) and by the AWS
// Lambda adapter, and enforces cross-cutting concerns (security, logging,
// observability, traffic control and error handling) before requests reach
// the domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"astroscope/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count. endpoint is the
	// matched route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of handlers under /api.
type RouteRegistrar func(r chi.Router)

// Server holds the chassis dependencies. Optional collaborators (Metrics,
// RateLimitStore, IdempotencyStore) disable their middleware when nil.
type Server struct {
	Config           *config.Config
	Logger           *slog.Logger
	Validator        *Validator
	Metrics          MetricsCollector
	RateLimitStore   RateLimitStore
	IdempotencyStore IdempotencyStore
	HealthProbes     []HealthProbe

	// APIRouteRegistrars are populated by main to avoid an import cycle
	// between core and the handler packages.
	APIRouteRegistrars []RouteRegistrar

	// Closers are released in order by Shutdown.
	Closers []io.Closer

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// Call MountRoutes after injecting optional collaborators.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases registered resources. Every closer is attempted; the
// errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for _, c := range s.Closers {
		if err := c.Close(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("releasing server resources: %w", err)
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"astroscope/internal/types"
)

const defaultRequestTimeout = 30 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Proxy-Authorization",
}

// MountRoutes installs the middleware chain and all routes. Call it once,
// after injecting optional collaborators and APIRouteRegistrars.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/", s.HandleRoot)
	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/api", s.mountAPI)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusNotFound, APIErrorResponse{Error: ErrorDetail{
			Code:      "not_found_route",
			Message:   "route not found",
			RequestID: requestIDOf(r),
		}})
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusMethodNotAllowed, APIErrorResponse{Error: ErrorDetail{
			Code:      "method_not_allowed",
			Message:   "method not allowed",
			RequestID: requestIDOf(r),
		}})
	})
}

// registerGlobalMiddleware applies middleware in order:
//  1. Recoverer: outermost, catches every panic.
//  2. ContextTimeout: soft deadline below the platform timeout.
//  3. RequestID: correlation id for logs and error bodies.
//  4. ClientIP: resolved once for logging and rate limiting.
//  5. SecurityHeaders.
//  6. RequestLogger.
//  7. CORS: answers preflight before routing.
//  8. Metrics.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(ClientIPMiddleware(s.Config.Security.TrustProxyHeaders))
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.Config.Security.CorsAllowedOrigins))
	s.router.Use(s.MetricsMiddleware)
}

// mountAPI registers the domain handlers behind rate limiting and
// idempotency. Registrars are supplied by main to keep core free of handler
// imports.
func (s *Server) mountAPI(r chi.Router) {
	r.Use(s.RateLimit)
	r.Use(s.IdempotencyMiddleware)
	for _, register := range s.APIRouteRegistrars {
		register(r)
	}
}

// HandleRoot answers the liveness banner.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{"message": "Astrology API is running"})
}

func (s *Server) requestTimeout() time.Duration {
	if d := s.Config.Server.RequestTimeout; d > 0 {
		return d
	}
	return defaultRequestTimeout
}

// MaxBodyBytes returns the configured request body limit.
func (s *Server) MaxBodyBytes() int64 {
	if n := s.Config.Server.MaxBodyBytes; n > 0 {
		return n
	}
	return DefaultMaxBodyBytes
}

func requestIDOf(r *http.Request) string {
	return types.GetRequestID(r.Context())
}

package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the whole health check. Probes still running at
// the deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

// Health states reported by /health.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthProbe checks one dependency of the service.
type HealthProbe interface {
	// Name identifies the component in the response (e.g. "ephemeris").
	Name() string
	// Check returns an error when the component is unreachable. It must
	// respect the context deadline.
	Check(ctx context.Context) error
}

// OptionalProbe is implemented by probes whose failure degrades the service
// without making it unhealthy.
type OptionalProbe interface {
	Optional() bool
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently. It answers 200 when all
// required probes pass (degraded if an optional one failed) and 503 otherwise.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: HealthHealthy})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]error, len(probes))
		done    = make([]bool, len(probes))
		wg      sync.WaitGroup
	)
	for i, p := range probes {
		wg.Go(func() {
			err := runProbe(ctx, p)
			mu.Lock()
			results[i], done[i] = err, true
			mu.Unlock()
		})
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp := healthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]componentStatus, len(probes)),
	}
	for i, p := range probes {
		cs := componentStatus{Status: HealthHealthy}
		switch {
		case !done[i]:
			cs = componentStatus{Status: HealthUnhealthy, Message: "health check timed out"}
		case results[i] != nil:
			cs = componentStatus{Status: HealthUnhealthy, Message: results[i].Error()}
		}
		if cs.Status != HealthHealthy {
			if isOptional(p) {
				cs.Status = HealthDegraded
				if resp.Status == HealthHealthy {
					resp.Status = HealthDegraded
				}
			} else {
				resp.Status = HealthUnhealthy
			}
		}
		resp.Components[p.Name()] = cs
	}

	status := http.StatusOK
	if resp.Status == HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}

func isOptional(p HealthProbe) bool {
	o, ok := p.(OptionalProbe)
	return ok && o.Optional()
}

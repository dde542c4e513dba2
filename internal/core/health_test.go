package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type panickingProbe struct{}

func (panickingProbe) Name() string                { return "panicky" }
func (panickingProbe) Check(context.Context) error { panic("probe bug") }

func runHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := runHealth(t)
	if code != http.StatusOK || resp.Status != HealthHealthy {
		t.Errorf("expected healthy 200, got %d %+v", code, resp)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, resp := runHealth(t,
		&MockHealthProbe{ProbeName: "ephemeris"},
		&MockHealthProbe{ProbeName: "store", IsOptional: true},
	)
	if code != http.StatusOK || resp.Status != HealthHealthy {
		t.Fatalf("expected healthy 200, got %d %+v", code, resp)
	}
	if len(resp.Components) != 2 || resp.Components["ephemeris"].Status != HealthHealthy {
		t.Errorf("unexpected components %+v", resp.Components)
	}
}

func TestHandleHealth_OptionalFailureDegrades(t *testing.T) {
	code, resp := runHealth(t,
		&MockHealthProbe{ProbeName: "ephemeris"},
		&MockHealthProbe{ProbeName: "store", IsOptional: true, Err: errors.New("not configured")},
	)
	if code != http.StatusOK || resp.Status != HealthDegraded {
		t.Fatalf("expected degraded 200, got %d %+v", code, resp)
	}
	if c := resp.Components["store"]; c.Status != HealthDegraded || c.Message != "not configured" {
		t.Errorf("unexpected store component %+v", c)
	}
}

func TestHandleHealth_RequiredFailureIsUnhealthy(t *testing.T) {
	code, resp := runHealth(t,
		&MockHealthProbe{ProbeName: "ephemeris", Err: errors.New("upstream down")},
		&MockHealthProbe{ProbeName: "redis", IsOptional: true, Err: errors.New("refused")},
	)
	if code != http.StatusServiceUnavailable || resp.Status != HealthUnhealthy {
		t.Errorf("expected unhealthy 503, got %d %+v", code, resp)
	}
}

func TestHandleHealth_PanicIsContained(t *testing.T) {
	code, resp := runHealth(t, panickingProbe{})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if resp.Components["panicky"].Status != HealthUnhealthy {
		t.Errorf("unexpected component %+v", resp.Components["panicky"])
	}
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the health timeout")
	}
	start := time.Now()
	code, resp := runHealth(t, &MockHealthProbe{ProbeName: "slow", Delay: 10 * time.Second})

	if elapsed := time.Since(start); elapsed > healthCheckTimeout+time.Second {
		t.Errorf("health check took %s", elapsed)
	}
	if code != http.StatusServiceUnavailable || resp.Components["slow"].Status != HealthUnhealthy {
		t.Errorf("expected timed-out probe to be unhealthy, got %d %+v", code, resp)
	}
}

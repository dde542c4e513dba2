package ephemeris

import (
	"context"
	"time"

	"astroscope/internal/zodiac"
)

// HealthProbe checks that the ephemeris upstream answers a trivial query.
// It should wrap the uncached provider; a cache hit proves nothing about
// upstream reachability.
type HealthProbe struct {
	provider Provider
	now      func() time.Time
}

// NewHealthProbe creates a probe against provider.
func NewHealthProbe(provider Provider) *HealthProbe {
	return &HealthProbe{provider: provider, now: time.Now}
}

// Name implements core.HealthProbe.
func (h *HealthProbe) Name() string { return "ephemeris" }

// Check implements core.HealthProbe.
func (h *HealthProbe) Check(ctx context.Context) error {
	_, err := h.provider.Position(ctx, zodiac.Sun, h.now().UTC().Truncate(time.Hour))
	return err
}

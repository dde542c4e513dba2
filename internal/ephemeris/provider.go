// Package ephemeris supplies planetary positions and sidereal time to the
// chart and transit services. Positions are never computed locally: a
// Provider fetches them from an external ephemeris (JPL Horizons in
// production) and may be wrapped in a cache.
package ephemeris

import (
	"context"
	"time"

	"astroscope/internal/zodiac"
)

// Day is the sampling step of a daily series.
const Day = 24 * time.Hour

// Position is a body's geocentric apparent ecliptic placement at one instant.
// Speed is the rate of change of Longitude in degrees per day; it is negative
// while the body is retrograde.
type Position struct {
	Body      zodiac.Body `json:"body"`
	Time      time.Time   `json:"time"`
	Longitude float64     `json:"longitude"`
	Latitude  float64     `json:"latitude"`
	Speed     float64     `json:"speed"`
}

// Observer is a geodetic site on Earth. Elevation is in kilometres.
type Observer struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// Provider is the external ephemeris capability.
type Provider interface {
	// Name identifies the backing source, for logs, metrics and cache keys.
	Name() string

	// Position returns the placement of body at the given instant.
	Position(ctx context.Context, body zodiac.Body, at time.Time) (Position, error)

	// DailySeries returns days samples of body taken at start + i*24h, in
	// ascending time order.
	DailySeries(ctx context.Context, body zodiac.Body, start time.Time, days int) ([]Position, error)

	// SiderealTime returns the local apparent sidereal time at the observer,
	// in degrees [0, 360).
	SiderealTime(ctx context.Context, at time.Time, obs Observer) (float64, error)
}

// speedFromDelta converts the arc between two samples lag apart into degrees
// per day, taking the short way around the circle.
func speedFromDelta(prev, cur float64, lag time.Duration) float64 {
	days := lag.Hours() / 24
	if days <= 0 {
		return 0
	}
	return zodiac.SignedDelta(prev, cur) / days
}

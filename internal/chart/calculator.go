// Package chart computes natal charts: planet placements, Equal House cusps
// anchored at the ascendant, and the aspects between every pair of planets.
package chart

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"astroscope/internal/ephemeris"
	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

// HouseSystemEqual is the only supported house system.
const HouseSystemEqual = "equal"

const (
	longitudePlaces = 4
	aspectPlaces    = 2
)

// Request identifies the instant and place a chart is cast for.
type Request struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
	City      string
}

// Validate checks the observer coordinates. Latitudes of exactly ±90 have no
// defined ascendant.
func (r Request) Validate() error {
	if math.IsNaN(r.Latitude) || r.Latitude <= -90 || r.Latitude >= 90 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidLat,
			"latitude must be strictly between -90 and 90",
			nil,
			map[string]any{"latitude": r.Latitude},
		)
	}
	if math.IsNaN(r.Longitude) || r.Longitude < -180 || r.Longitude > 180 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidLon,
			"longitude must be between -180 and 180",
			nil,
			map[string]any{"longitude": r.Longitude},
		)
	}
	if r.Time.IsZero() {
		return types.NewAppError(types.ErrCodeValidationInvalidTimestamp, "timestamp is required", nil)
	}
	return nil
}

// Calculator casts charts from an ephemeris Provider.
type Calculator struct {
	provider ephemeris.Provider
	logger   *slog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(provider ephemeris.Provider, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{provider: provider, logger: logger}
}

// Compute casts the chart for req. All ten planet positions and the local
// sidereal time are fetched concurrently; any failure fails the whole chart.
func (c *Calculator) Compute(ctx context.Context, req Request) (*types.Chart, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	at := req.Time.UTC()

	positions := make([]ephemeris.Position, len(zodiac.Bodies))
	var lst float64

	g, gctx := errgroup.WithContext(ctx)
	for i, body := range zodiac.Bodies {
		g.Go(func() error {
			pos, err := c.provider.Position(gctx, body, at)
			if err != nil {
				return fmt.Errorf("position of %s: %w", body, err)
			}
			positions[i] = pos
			return nil
		})
	}
	g.Go(func() error {
		var err error
		lst, err = c.provider.SiderealTime(gctx, at, ephemeris.Observer{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
		if err != nil {
			return fmt.Errorf("sidereal time: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		appErr := ephemeris.AsAppError(ctx, err)
		c.logger.ErrorContext(ctx, "chart computation failed",
			"error", err,
			"code", appErr.Code,
			"timestamp", at,
		)
		return nil, appErr
	}

	return assemble(req, at, positions, lst), nil
}

// assemble derives angles, houses and aspects from raw positions.
func assemble(req Request, at time.Time, positions []ephemeris.Position, lst float64) *types.Chart {
	eps := zodiac.MeanObliquity(at)
	asc := zodiac.Ascendant(lst, eps, req.Latitude)
	mc := zodiac.Midheaven(lst, eps)

	chart := &types.Chart{
		Timestamp: at,
		Location: types.GeoLocation{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			City:      req.City,
		},
		HouseSystem: HouseSystemEqual,
		Ascendant:   angle(asc),
		Midheaven:   angle(mc),
		Planets:     make([]types.CelestialBodyPosition, 0, len(positions)),
		Houses:      make([]types.HouseCusp, 0, zodiac.HouseCount),
		Aspects:     []types.AspectResult{},
	}

	for i, cusp := range zodiac.EqualHouseCusps(asc) {
		lon, sign, deg := zodiac.Place(cusp, longitudePlaces)
		chart.Houses = append(chart.Houses, types.HouseCusp{
			Number:       i + 1,
			Longitude:    lon,
			Sign:         sign.String(),
			DegreeInSign: deg,
		})
	}

	longitudes := make([]zodiac.BodyLongitude, 0, len(positions))
	for _, pos := range positions {
		lon := zodiac.Normalize(pos.Longitude)
		shown, sign, deg := zodiac.Place(lon, longitudePlaces)
		chart.Planets = append(chart.Planets, types.CelestialBodyPosition{
			Name:         pos.Body.String(),
			Longitude:    shown,
			Latitude:     zodiac.Round(pos.Latitude, longitudePlaces),
			Sign:         sign.String(),
			DegreeInSign: deg,
			IsRetrograde: zodiac.IsRetrograde(pos.Speed),
			House:        zodiac.HouseOf(lon, asc),
		})
		longitudes = append(longitudes, zodiac.BodyLongitude{Body: pos.Body, Longitude: lon})
	}

	for _, a := range zodiac.FindAspects(longitudes) {
		chart.Aspects = append(chart.Aspects, types.AspectResult{
			BodyA:      a.BodyA.String(),
			BodyB:      a.BodyB.String(),
			Type:       a.Type.Name,
			Separation: zodiac.Round(a.Separation, aspectPlaces),
			Orb:        zodiac.Round(a.Orb, aspectPlaces),
		})
	}

	return chart
}

func angle(lon float64) types.ChartAngle {
	shown, sign, deg := zodiac.Place(lon, longitudePlaces)
	return types.ChartAngle{
		Longitude:    shown,
		Sign:         sign.String(),
		DegreeInSign: deg,
	}
}

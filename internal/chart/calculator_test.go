package chart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroscope/internal/ephemeris"
	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

var castAt = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// fixedLongitudes places each body at a constant longitude. Bodies missing
// from the map sit near 200 degrees, clear of any aspect with the Sun at 10.
func fixedLongitudes(m map[zodiac.Body]float64) func(zodiac.Body, time.Time) float64 {
	return func(b zodiac.Body, _ time.Time) float64 {
		if v, ok := m[b]; ok {
			return v
		}
		return 200 + float64(b)*0.1
	}
}

func findPair(aspects []types.AspectResult, a, b, kind string) (types.AspectResult, bool) {
	for _, asp := range aspects {
		if asp.BodyA == a && asp.BodyB == b && asp.Type == kind {
			return asp, true
		}
	}
	return types.AspectResult{}, false
}

func TestCompute_SquareAspectTolerance(t *testing.T) {
	tests := []struct {
		name       string
		mars       float64
		wantSquare bool
		wantOrb    float64
	}{
		{"exact", 100, true, 0},
		{"five wide", 105, true, 5},
		{"outside", 110, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &ephemeris.FakeProvider{LongitudeFunc: fixedLongitudes(map[zodiac.Body]float64{
				zodiac.Sun:  10,
				zodiac.Mars: tt.mars,
			})}
			c := NewCalculator(fake, nil)

			chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 0, Longitude: 0})
			require.NoError(t, err)

			sq, ok := findPair(chart.Aspects, "Sun", "Mars", "Square")
			assert.Equal(t, tt.wantSquare, ok)
			if ok {
				assert.Equal(t, tt.wantOrb, sq.Orb)
				assert.Equal(t, zodiac.Round(tt.mars-10, 2), sq.Separation)
			}
		})
	}
}

func TestCompute_PlanetsHousesAndAngles(t *testing.T) {
	fake := &ephemeris.FakeProvider{
		LongitudeFunc: fixedLongitudes(map[zodiac.Body]float64{
			zodiac.Sun:  10,
			zodiac.Moon: 123.456789,
		}),
		SiderealFunc: func(time.Time, ephemeris.Observer) float64 { return 0 },
	}
	c := NewCalculator(fake, nil)

	chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 0, Longitude: 0, City: "Null Island"})
	require.NoError(t, err)

	assert.Equal(t, HouseSystemEqual, chart.HouseSystem)
	assert.Equal(t, "Null Island", chart.Location.City)
	assert.True(t, chart.Timestamp.Equal(castAt))

	// Sidereal time 0 at the equator: Cancer rises, Aries culminates.
	assert.InDelta(t, 90.0, chart.Ascendant.Longitude, 1e-3)
	assert.Equal(t, "Cancer", chart.Ascendant.Sign)
	assert.InDelta(t, 0.0, chart.Midheaven.Longitude, 1e-3)

	require.Len(t, chart.Houses, 12)
	for i, h := range chart.Houses {
		assert.Equal(t, i+1, h.Number)
	}
	assert.InDelta(t, 90.0, chart.Houses[0].Longitude, 1e-3)
	assert.InDelta(t, 60.0, chart.Houses[11].Longitude, 1e-3)

	require.Len(t, chart.Planets, 10)
	for i, p := range chart.Planets {
		assert.Equal(t, zodiac.Bodies[i].String(), p.Name)
		assert.GreaterOrEqual(t, p.House, 1)
		assert.LessOrEqual(t, p.House, 12)
	}

	sun := chart.Planets[0]
	assert.Equal(t, "Aries", sun.Sign)
	assert.Equal(t, 10, sun.House)

	moon := chart.Planets[1]
	assert.Equal(t, 123.4568, moon.Longitude)
	assert.Equal(t, "Leo", moon.Sign)
	assert.Equal(t, 3.4568, moon.DegreeInSign)
	assert.Equal(t, 2, moon.House)
}

func TestCompute_RoundedLongitudeMatchesSign(t *testing.T) {
	fake := &ephemeris.FakeProvider{
		LongitudeFunc: fixedLongitudes(map[zodiac.Body]float64{
			zodiac.Sun:  359.99999,
			zodiac.Moon: 29.99999,
		}),
		SiderealFunc: func(time.Time, ephemeris.Observer) float64 { return 0 },
	}
	c := NewCalculator(fake, nil)

	chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 0, Longitude: 0})
	require.NoError(t, err)

	sun := chart.Planets[0]
	assert.Equal(t, 0.0, sun.Longitude)
	assert.Equal(t, "Aries", sun.Sign)
	assert.Equal(t, 0.0, sun.DegreeInSign)

	moon := chart.Planets[1]
	assert.Equal(t, 30.0, moon.Longitude)
	assert.Equal(t, "Taurus", moon.Sign)
	assert.Equal(t, 0.0, moon.DegreeInSign)
}

func TestCompute_RetrogradeFromSpeed(t *testing.T) {
	fake := &ephemeris.FakeProvider{LongitudeFunc: func(b zodiac.Body, at time.Time) float64 {
		d := at.Sub(castAt).Hours() / 24
		if b == zodiac.Mercury {
			return 50 - 0.3*d
		}
		return 50 + 0.3*d
	}}
	c := NewCalculator(fake, nil)

	chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 40, Longitude: -74})
	require.NoError(t, err)

	for _, p := range chart.Planets {
		assert.Equal(t, p.Name == "Mercury", p.IsRetrograde, p.Name)
	}
}

func TestCompute_AspectsPairedInBodyOrder(t *testing.T) {
	fake := &ephemeris.FakeProvider{LongitudeFunc: func(zodiac.Body, time.Time) float64 { return 0 }}
	c := NewCalculator(fake, nil)

	chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 10, Longitude: 10})
	require.NoError(t, err)

	require.Len(t, chart.Aspects, 45)
	first := chart.Aspects[0]
	assert.Equal(t, "Sun", first.BodyA)
	assert.Equal(t, "Moon", first.BodyB)
	assert.Equal(t, "Conjunction", first.Type)
	last := chart.Aspects[44]
	assert.Equal(t, "Neptune", last.BodyA)
	assert.Equal(t, "Pluto", last.BodyB)
}

func TestCompute_ProviderFailureFailsWholeChart(t *testing.T) {
	boom := errors.New("no ephemeris")
	fake := &ephemeris.FakeProvider{
		LongitudeFunc: func(zodiac.Body, time.Time) float64 { return 0 },
		Hook:          func(context.Context) error { return boom },
	}
	c := NewCalculator(fake, nil)

	chart, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 10, Longitude: 10})
	assert.Nil(t, chart)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEphemeris, appErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestCompute_ValidationBeforeProviderCalls(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantCode types.ErrorCode
	}{
		{"north pole", Request{Time: castAt, Latitude: 90}, types.ErrCodeValidationInvalidLat},
		{"south pole", Request{Time: castAt, Latitude: -90}, types.ErrCodeValidationInvalidLat},
		{"longitude too far east", Request{Time: castAt, Longitude: 180.5}, types.ErrCodeValidationInvalidLon},
		{"missing time", Request{Latitude: 1}, types.ErrCodeValidationInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &ephemeris.FakeProvider{LongitudeFunc: func(zodiac.Body, time.Time) float64 { return 0 }}
			c := NewCalculator(fake, nil)

			_, err := c.Compute(context.Background(), tt.req)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Zero(t, fake.PositionCalls())
		})
	}
}

func TestCompute_BoundaryLongitudesAccepted(t *testing.T) {
	fake := &ephemeris.FakeProvider{LongitudeFunc: func(zodiac.Body, time.Time) float64 { return 0 }}
	c := NewCalculator(fake, nil)

	for _, lon := range []float64{-180, 180} {
		_, err := c.Compute(context.Background(), Request{Time: castAt, Latitude: 89.9, Longitude: lon})
		assert.NoError(t, err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-20T03:06:00Z", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), false},
		{"2024-03-20T05:06:00+02:00", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), false},
		{"2024-03-20T03:06:07", time.Date(2024, 3, 20, 3, 6, 7, 0, time.UTC), false},
		{"2024-03-20T03:06", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), false},
		{"2024-03-20 03:06:07", time.Date(2024, 3, 20, 3, 6, 7, 0, time.UTC), false},
		{"2024-03-20 03:06", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), false},
		{" 2024-03-20 ", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), false},
		{"20/03/2024", time.Time{}, true},
		{"2024-13-01", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				var appErr *types.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, types.ErrCodeValidationInvalidTimestamp, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

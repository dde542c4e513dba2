package ephemeris

import (
	"context"
	"sync/atomic"
	"time"

	"astroscope/internal/zodiac"
)

// FakeProvider is a deterministic in-process Provider for tests and local
// development without network access. Longitudes come from LongitudeFunc and
// Speed is a one-day backward difference of that function.
type FakeProvider struct {
	LongitudeFunc func(body zodiac.Body, t time.Time) float64
	SiderealFunc  func(t time.Time, obs Observer) float64

	// Hook, when set, runs before every call. A non-nil error fails the call.
	Hook func(ctx context.Context) error

	positionCalls atomic.Int64
	seriesCalls   atomic.Int64
	seriesDays    atomic.Int64
}

var _ Provider = (*FakeProvider)(nil)

// fakeEpoch anchors LinearMotion.
var fakeEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// LinearMotion returns a longitude function that starts every body at base
// on 2000-01-01 and advances it by rate degrees per day.
func LinearMotion(base, rate float64) func(zodiac.Body, time.Time) float64 {
	return func(_ zodiac.Body, t time.Time) float64 {
		return zodiac.Normalize(base + rate*t.Sub(fakeEpoch).Hours()/24)
	}
}

// Name implements Provider.
func (f *FakeProvider) Name() string { return "fake" }

// Position implements Provider.
func (f *FakeProvider) Position(ctx context.Context, body zodiac.Body, at time.Time) (Position, error) {
	f.positionCalls.Add(1)
	if err := f.before(ctx); err != nil {
		return Position{}, err
	}
	return f.sample(body, at.UTC()), nil
}

// DailySeries implements Provider.
func (f *FakeProvider) DailySeries(ctx context.Context, body zodiac.Body, start time.Time, days int) ([]Position, error) {
	f.seriesCalls.Add(1)
	f.seriesDays.Add(int64(days))
	if err := f.before(ctx); err != nil {
		return nil, err
	}
	out := make([]Position, days)
	for i := range out {
		out[i] = f.sample(body, start.UTC().Add(time.Duration(i)*Day))
	}
	return out, nil
}

// SiderealTime implements Provider.
func (f *FakeProvider) SiderealTime(ctx context.Context, at time.Time, obs Observer) (float64, error) {
	if err := f.before(ctx); err != nil {
		return 0, err
	}
	if f.SiderealFunc == nil {
		return 0, nil
	}
	return zodiac.Normalize(f.SiderealFunc(at.UTC(), obs)), nil
}

// PositionCalls reports how many times Position was called.
func (f *FakeProvider) PositionCalls() int { return int(f.positionCalls.Load()) }

// SeriesCalls reports how many times DailySeries was called.
func (f *FakeProvider) SeriesCalls() int { return int(f.seriesCalls.Load()) }

// SeriesDays reports the total number of days requested through DailySeries.
func (f *FakeProvider) SeriesDays() int { return int(f.seriesDays.Load()) }

func (f *FakeProvider) before(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Hook != nil {
		return f.Hook(ctx)
	}
	return nil
}

func (f *FakeProvider) sample(body zodiac.Body, t time.Time) Position {
	lon := zodiac.Normalize(f.LongitudeFunc(body, t))
	prev := zodiac.Normalize(f.LongitudeFunc(body, t.Add(-Day)))
	return Position{
		Body:      body,
		Time:      t,
		Longitude: lon,
		Speed:     speedFromDelta(prev, lon, Day),
	}
}

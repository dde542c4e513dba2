package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroscope/internal/external"
	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

// fakeHorizons serves observer tables computed from lonAt(jd).
type fakeHorizons struct {
	mu       sync.Mutex
	requests []url.Values

	lonAt    func(jd float64) float64
	lstField string
	override func(w http.ResponseWriter, q url.Values) bool
}

func (f *fakeHorizons) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.requests = append(f.requests, q)
	f.mu.Unlock()

	if f.override != nil && f.override(w, q) {
		return
	}

	var jds []float64
	if tlist := unquote(q.Get("TLIST")); tlist != "" {
		for _, s := range strings.Fields(tlist) {
			v, _ := strconv.ParseFloat(s, 64)
			jds = append(jds, v)
		}
	} else {
		start := parseJDArg(q.Get("START_TIME"))
		stop := parseJDArg(q.Get("STOP_TIME"))
		for jd := start; jd <= stop+1e-6; jd++ {
			jds = append(jds, jd)
		}
	}

	var b strings.Builder
	b.WriteString("*******************************************************************************\n")
	b.WriteString(" Date__(UT)__HR:MN, , , ObsEcLon, ObsEcLat,\n")
	b.WriteString(soeMarker + "\n")
	for _, jd := range jds {
		if unquote(q.Get("QUANTITIES")) == siderealTimeQty {
			fmt.Fprintf(&b, " 2000-Jan-01 00:00,*, , %s,\n", f.lstField)
			continue
		}
		fmt.Fprintf(&b, " 2000-Jan-01 00:00, ,m, %12.7f, %10.7f,\n", zodiac.Normalize(f.lonAt(jd)), 1.25)
	}
	b.WriteString(eoeMarker + "\n")
	b.WriteString("*******************************************************************************\n")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"signature": map[string]string{"source": "NASA/JPL Horizons API", "version": "1.2"},
		"result":    b.String(),
	})
}

func (f *fakeHorizons) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func unquote(s string) string { return strings.Trim(s, "'") }

func parseJDArg(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimPrefix(unquote(s), "JD "), 64)
	return v
}

func newTestHorizons(t *testing.T, f *fakeHorizons, lag time.Duration) *HorizonsProvider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client := external.NewBaseClient(
		srv.Client(),
		external.DefaultBreakerSettings("horizons-test"),
		external.RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"astroscope-test",
		external.WithUpstreamErrorCode(types.ErrCodeUpstreamEphemeris),
	)
	return NewHorizonsProvider(client, HorizonsConfig{BaseURL: srv.URL, SpeedLag: lag}, nil)
}

func TestHorizons_Position(t *testing.T) {
	f := &fakeHorizons{lonAt: func(jd float64) float64 { return 100 + (jd-2451545)*0.5 }}
	p := newTestHorizons(t, f, Day)

	at := time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC)
	pos, err := p.Position(context.Background(), zodiac.Mars, at)
	require.NoError(t, err)

	assert.Equal(t, zodiac.Mars, pos.Body)
	assert.True(t, pos.Time.Equal(at))
	assert.InDelta(t, 100.5, pos.Longitude, 1e-6)
	assert.InDelta(t, 1.25, pos.Latitude, 1e-9)
	assert.InDelta(t, 0.5, pos.Speed, 1e-6)

	require.Equal(t, 1, f.requestCount())
	q := f.requests[0]
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "'499'", q.Get("COMMAND"))
	assert.Equal(t, "'500@399'", q.Get("CENTER"))
	assert.Equal(t, "'31'", q.Get("QUANTITIES"))
	assert.Equal(t, "'OBSERVER'", q.Get("EPHEM_TYPE"))
	assert.Equal(t, "'YES'", q.Get("CSV_FORMAT"))
	assert.Len(t, strings.Fields(unquote(q.Get("TLIST"))), 2)
}

func TestHorizons_PositionRetrogradeAndWrap(t *testing.T) {
	// Moving backwards across 0 Aries: 0.5 -> 359.7 over one day.
	f := &fakeHorizons{lonAt: func(jd float64) float64 { return 0.5 - (jd-2451545)*0.8 }}
	p := newTestHorizons(t, f, Day)

	pos, err := p.Position(context.Background(), zodiac.Mercury, time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 359.7, pos.Longitude, 1e-6)
	assert.InDelta(t, -0.8, pos.Speed, 1e-6)
	assert.True(t, zodiac.IsRetrograde(pos.Speed))
}

func TestHorizons_DailySeries_DayLagUsesOneRequest(t *testing.T) {
	f := &fakeHorizons{lonAt: func(jd float64) float64 { return 350 + (jd-2451544.5)*2 }}
	p := newTestHorizons(t, f, Day)

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	series, err := p.DailySeries(context.Background(), zodiac.Moon, start, 10)
	require.NoError(t, err)
	require.Len(t, series, 10)
	require.Equal(t, 1, f.requestCount())

	q := f.requests[0]
	assert.Equal(t, "'301'", q.Get("COMMAND"))
	assert.Equal(t, "'1 d'", q.Get("STEP_SIZE"))
	assert.InDelta(t, 2451543.5, parseJDArg(q.Get("START_TIME")), 1e-6)
	assert.InDelta(t, 2451553.5, parseJDArg(q.Get("STOP_TIME")), 1e-6)

	for i, pos := range series {
		assert.True(t, pos.Time.Equal(start.AddDate(0, 0, i)), "day %d", i)
		assert.InDelta(t, zodiac.Normalize(350+float64(i)*2), pos.Longitude, 1e-6)
		assert.InDelta(t, 2.0, pos.Speed, 1e-6)
	}
}

func TestHorizons_DailySeries_ShortLagFetchesShiftedSeries(t *testing.T) {
	f := &fakeHorizons{lonAt: func(jd float64) float64 { return 10 + (jd-2451544.5)*1.0 }}
	p := newTestHorizons(t, f, 6*time.Hour)

	series, err := p.DailySeries(context.Background(), zodiac.Venus, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	require.Len(t, series, 5)
	assert.Equal(t, 2, f.requestCount())
	for _, pos := range series {
		assert.InDelta(t, 1.0, pos.Speed, 1e-6)
	}
}

func TestHorizons_DailySeries_SingleDayUsesList(t *testing.T) {
	f := &fakeHorizons{lonAt: func(jd float64) float64 { return 42 }}
	p := newTestHorizons(t, f, 6*time.Hour)

	series, err := p.DailySeries(context.Background(), zodiac.Pluto, time.Date(1900, 6, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, 42.0, series[0].Longitude, 1e-9)
	assert.InDelta(t, 0.0, series[0].Speed, 1e-9)
}

func TestHorizons_SiderealTime(t *testing.T) {
	f := &fakeHorizons{lstField: "06 30 00.0000"}
	p := newTestHorizons(t, f, Day)

	lst, err := p.SiderealTime(context.Background(), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Observer{Latitude: 51.5, Longitude: -0.12})
	require.NoError(t, err)
	assert.InDelta(t, 97.5, lst, 1e-9)

	q := f.requests[0]
	assert.Equal(t, "'coord@399'", q.Get("CENTER"))
	assert.Equal(t, "'7'", q.Get("QUANTITIES"))
	assert.Equal(t, "'GEODETIC'", q.Get("COORD_TYPE"))
	assert.Equal(t, "'-0.120000,51.500000,0.000'", q.Get("SITE_COORD"))
}

func TestHorizons_SiderealTimeDecimalHours(t *testing.T) {
	f := &fakeHorizons{lstField: "23.5"}
	p := newTestHorizons(t, f, Day)

	lst, err := p.SiderealTime(context.Background(), time.Now(), Observer{})
	require.NoError(t, err)
	assert.InDelta(t, 352.5, lst, 1e-9)
}

func TestHorizons_Errors(t *testing.T) {
	tests := []struct {
		name     string
		override func(w http.ResponseWriter, q url.Values) bool
		wantCode types.ErrorCode
	}{
		{
			name: "api error field",
			override: func(w http.ResponseWriter, _ url.Values) bool {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"Cannot interpret date. Type \"?time\" for assistance."}`))
				return true
			},
			wantCode: types.ErrCodeUpstreamInvalidResponse,
		},
		{
			name: "missing markers",
			override: func(w http.ResponseWriter, _ url.Values) bool {
				_, _ = w.Write([]byte(`{"result":"No ephemeris for target"}`))
				return true
			},
			wantCode: types.ErrCodeUpstreamInvalidResponse,
		},
		{
			name: "row count mismatch",
			override: func(w http.ResponseWriter, _ url.Values) bool {
				_, _ = w.Write([]byte(`{"result":"$$SOE\n 2000-Jan-01 00:00, , , 1.0, 0.0,\n$$EOE"}`))
				return true
			},
			wantCode: types.ErrCodeUpstreamInvalidResponse,
		},
		{
			name: "not json",
			override: func(w http.ResponseWriter, _ url.Values) bool {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
				return true
			},
			wantCode: types.ErrCodeUpstreamInvalidResponse,
		},
		{
			name: "upstream down",
			override: func(w http.ResponseWriter, _ url.Values) bool {
				w.WriteHeader(http.StatusServiceUnavailable)
				return true
			},
			wantCode: types.ErrCodeUpstreamEphemeris,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeHorizons{override: tt.override}
			p := newTestHorizons(t, f, Day)

			_, err := p.Position(context.Background(), zodiac.Sun, time.Now())
			require.Error(t, err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestHorizons_CancelledContext(t *testing.T) {
	f := &fakeHorizons{lonAt: func(float64) float64 { return 0 }}
	p := newTestHorizons(t, f, Day)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.DailySeries(ctx, zodiac.Sun, time.Now(), 3)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUnavailableCancelled, appErr.Code)
}

func TestNumericFields(t *testing.T) {
	tests := []struct {
		row  string
		want []float64
	}{
		{" 2000-Jan-01 00:00, , ,  279.8592710,  -0.0002240,", []float64{279.859271, -0.000224}},
		{" 2000-Jan-01 00:00,*,m,  10.5,  1.0,", []float64{10.5, 1.0}},
		{" 2000-Jan-01 00:00,*, , 06 40 12.0000,", []float64{6 + 40.0/60 + 12.0/3600}},
		{"no commas", nil},
	}
	for _, tt := range tests {
		got := numericFields(tt.row)
		require.Len(t, got, len(tt.want), tt.row)
		for i := range tt.want {
			assert.InDelta(t, tt.want[i], got[i], 1e-9)
		}
	}
}

func TestJulianDayArg(t *testing.T) {
	assert.Equal(t, "2451545.00000000", julianDayArg(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)))
}

package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"astroscope/internal/external"
	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

// DefaultHorizonsURL is the public JPL Horizons REST endpoint.
const DefaultHorizonsURL = "https://ssd.jpl.nasa.gov/api/horizons.api"

// HorizonsProviderName is the provider name used in cache keys and metrics.
const HorizonsProviderName = "horizons"

const (
	// maxResponseBytes bounds a single Horizons response. A 366-row CSV
	// ephemeris with headers is well under 200KB.
	maxResponseBytes = 8 << 20

	geocentric      = "500@399"
	topocentric     = "coord@399"
	eclipticQty     = "31"
	siderealTimeQty = "7"
	soeMarker       = "$$SOE"
	eoeMarker       = "$$EOE"
)

// horizonsCommands maps each body to its Horizons major-body id.
var horizonsCommands = map[zodiac.Body]string{
	zodiac.Sun:     "10",
	zodiac.Moon:    "301",
	zodiac.Mercury: "199",
	zodiac.Venus:   "299",
	zodiac.Mars:    "499",
	zodiac.Jupiter: "599",
	zodiac.Saturn:  "699",
	zodiac.Uranus:  "799",
	zodiac.Neptune: "899",
	zodiac.Pluto:   "999",
}

// HorizonsConfig configures the Horizons provider.
type HorizonsConfig struct {
	BaseURL string
	// SpeedLag is the backward-difference interval used to derive Speed.
	SpeedLag time.Duration
}

// HorizonsProvider fetches positions from the JPL Horizons API. All requests
// go through an external.BaseClient so transient upstream failures are
// retried and a failing upstream trips the circuit breaker.
type HorizonsProvider struct {
	client   *external.BaseClient
	baseURL  string
	speedLag time.Duration
	logger   *slog.Logger
}

var _ Provider = (*HorizonsProvider)(nil)

// NewHorizonsProvider creates a Horizons-backed Provider.
func NewHorizonsProvider(client *external.BaseClient, cfg HorizonsConfig, logger *slog.Logger) *HorizonsProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHorizonsURL
	}
	if cfg.SpeedLag <= 0 {
		cfg.SpeedLag = Day
	}
	return &HorizonsProvider{
		client:   client,
		baseURL:  cfg.BaseURL,
		speedLag: cfg.SpeedLag,
		logger:   logger,
	}
}

// Name implements Provider.
func (p *HorizonsProvider) Name() string { return HorizonsProviderName }

// eclipticSample is one parsed QUANTITIES='31' row.
type eclipticSample struct {
	lon float64
	lat float64
}

// Position implements Provider. Speed comes from a second sample taken
// speedLag earlier in the same request.
func (p *HorizonsProvider) Position(ctx context.Context, body zodiac.Body, at time.Time) (Position, error) {
	at = at.UTC()
	samples, err := p.eclipticList(ctx, body, []time.Time{at.Add(-p.speedLag), at})
	if err != nil {
		return Position{}, err
	}

	return Position{
		Body:      body,
		Time:      at,
		Longitude: samples[1].lon,
		Latitude:  samples[1].lat,
		Speed:     speedFromDelta(samples[0].lon, samples[1].lon, p.speedLag),
	}, nil
}

// DailySeries implements Provider. When the speed lag equals the sampling
// step, one extra leading sample supplies the first difference; otherwise a
// second series shifted by the lag is fetched concurrently.
func (p *HorizonsProvider) DailySeries(ctx context.Context, body zodiac.Body, start time.Time, days int) ([]Position, error) {
	if days <= 0 {
		return nil, nil
	}
	start = start.UTC()

	var cur, prev []eclipticSample
	if p.speedLag == Day {
		all, err := p.eclipticRange(ctx, body, start.Add(-Day), days+1)
		if err != nil {
			return nil, err
		}
		prev, cur = all[:days], all[1:]
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			cur, err = p.eclipticRange(gctx, body, start, days)
			return err
		})
		g.Go(func() error {
			var err error
			prev, err = p.eclipticRange(gctx, body, start.Add(-p.speedLag), days)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]Position, days)
	for i := range out {
		out[i] = Position{
			Body:      body,
			Time:      start.Add(time.Duration(i) * Day),
			Longitude: cur[i].lon,
			Latitude:  cur[i].lat,
			Speed:     speedFromDelta(prev[i].lon, cur[i].lon, p.speedLag),
		}
	}
	return out, nil
}

// SiderealTime implements Provider using the observer's local apparent
// sidereal time (QUANTITIES='7') at a topocentric site.
func (p *HorizonsProvider) SiderealTime(ctx context.Context, at time.Time, obs Observer) (float64, error) {
	params := url.Values{}
	params.Set("COMMAND", quote(horizonsCommands[zodiac.Sun]))
	params.Set("CENTER", quote(topocentric))
	params.Set("COORD_TYPE", quote("GEODETIC"))
	params.Set("SITE_COORD", quote(fmt.Sprintf("%.6f,%.6f,%.3f", obs.Longitude, obs.Latitude, obs.Elevation)))
	params.Set("QUANTITIES", quote(siderealTimeQty))
	params.Set("TLIST_TYPE", quote("JD"))
	params.Set("TLIST", quote(julianDayArg(at)))

	rows, err := p.query(ctx, params, 1)
	if err != nil {
		return 0, err
	}

	values := numericFields(rows[0])
	if len(values) == 0 {
		return 0, invalidResponse("sidereal time row has no numeric field: %q", rows[0])
	}
	hours := values[len(values)-1]
	return zodiac.Normalize(hours * 15), nil
}

// eclipticRange fetches n daily samples starting at start.
func (p *HorizonsProvider) eclipticRange(ctx context.Context, body zodiac.Body, start time.Time, n int) ([]eclipticSample, error) {
	if n == 1 {
		return p.eclipticList(ctx, body, []time.Time{start})
	}

	params, err := eclipticParams(body)
	if err != nil {
		return nil, err
	}
	stop := start.Add(time.Duration(n-1) * Day)
	params.Set("START_TIME", quote("JD "+julianDayArg(start)))
	params.Set("STOP_TIME", quote("JD "+julianDayArg(stop)))
	params.Set("STEP_SIZE", quote("1 d"))

	return p.eclipticRows(ctx, params, n)
}

// eclipticList fetches samples at discrete instants.
func (p *HorizonsProvider) eclipticList(ctx context.Context, body zodiac.Body, times []time.Time) ([]eclipticSample, error) {
	params, err := eclipticParams(body)
	if err != nil {
		return nil, err
	}
	jds := make([]string, len(times))
	for i, t := range times {
		jds[i] = julianDayArg(t)
	}
	params.Set("TLIST_TYPE", quote("JD"))
	params.Set("TLIST", quote(strings.Join(jds, " ")))

	return p.eclipticRows(ctx, params, len(times))
}

func (p *HorizonsProvider) eclipticRows(ctx context.Context, params url.Values, n int) ([]eclipticSample, error) {
	rows, err := p.query(ctx, params, n)
	if err != nil {
		return nil, err
	}

	out := make([]eclipticSample, len(rows))
	for i, row := range rows {
		values := numericFields(row)
		if len(values) < 2 {
			return nil, invalidResponse("ecliptic row has %d numeric fields: %q", len(values), row)
		}
		out[i] = eclipticSample{
			lon: zodiac.Normalize(values[len(values)-2]),
			lat: values[len(values)-1],
		}
	}
	return out, nil
}

func eclipticParams(body zodiac.Body) (url.Values, error) {
	cmd, ok := horizonsCommands[body]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("no ephemeris id for %s", body), nil)
	}
	params := url.Values{}
	params.Set("COMMAND", quote(cmd))
	params.Set("CENTER", quote(geocentric))
	params.Set("QUANTITIES", quote(eclipticQty))
	return params, nil
}

// horizonsResponse is the JSON envelope returned by the API.
type horizonsResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// query performs one observer-table request and returns exactly want data
// rows from between the $$SOE and $$EOE markers.
func (p *HorizonsProvider) query(ctx context.Context, params url.Values, want int) ([]string, error) {
	params.Set("format", "json")
	params.Set("OBJ_DATA", quote("NO"))
	params.Set("MAKE_EPHEM", quote("YES"))
	params.Set("EPHEM_TYPE", quote("OBSERVER"))
	params.Set("CSV_FORMAT", quote("YES"))
	params.Set("TIME_TYPE", quote("UT"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build ephemeris request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WarnContext(ctx, "ephemeris request failed",
			"provider", HorizonsProviderName,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEphemeris, "failed to read ephemeris response", err)
	}

	var decoded horizonsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamInvalidResponse, "ephemeris response is not valid JSON", err)
	}
	if decoded.Error != "" {
		return nil, invalidResponse("ephemeris rejected query: %s", strings.TrimSpace(decoded.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, invalidResponse("ephemeris returned status %d", resp.StatusCode)
	}

	rows, err := dataRows(decoded.Result)
	if err != nil {
		return nil, err
	}
	if len(rows) != want {
		return nil, invalidResponse("ephemeris returned %d rows, expected %d", len(rows), want)
	}

	p.logger.DebugContext(ctx, "ephemeris query complete",
		"provider", HorizonsProviderName,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

// dataRows extracts the non-empty lines between $$SOE and $$EOE.
func dataRows(result string) ([]string, error) {
	_, after, ok := strings.Cut(result, soeMarker)
	if !ok {
		return nil, invalidResponse("ephemeris result has no %s marker", soeMarker)
	}
	body, _, ok := strings.Cut(after, eoeMarker)
	if !ok {
		return nil, invalidResponse("ephemeris result has no %s marker", eoeMarker)
	}

	var rows []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

// numericFields parses every CSV field after the leading date column that
// holds a number. Sexagesimal "HH MM SS.f" fields are returned as decimal
// hours. Presence flags and blanks are skipped.
func numericFields(row string) []float64 {
	fields := strings.Split(row, ",")
	if len(fields) < 2 {
		return nil
	}

	var out []float64
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			out = append(out, v)
			continue
		}
		if v, ok := parseSexagesimal(f); ok {
			out = append(out, v)
		}
	}
	return out
}

func parseSexagesimal(s string) (float64, bool) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return 0, false
	}
	var vals [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		vals[i] = v
	}
	sign := 1.0
	if strings.HasPrefix(parts[0], "-") {
		sign = -1
	}
	return sign * (math.Abs(vals[0]) + vals[1]/60 + vals[2]/3600), true
}

// julianDayArg formats t as a Julian Day for START_TIME, STOP_TIME and TLIST.
// Julian Days sidestep the Julian/Gregorian calendar switch Horizons applies
// to calendar dates before 1582.
func julianDayArg(t time.Time) string {
	return strconv.FormatFloat(zodiac.JulianDay(t), 'f', 8, 64)
}

func quote(v string) string {
	return "'" + v + "'"
}

func invalidResponse(format string, args ...any) *types.AppError {
	return types.NewAppError(types.ErrCodeUpstreamInvalidResponse, fmt.Sprintf(format, args...), nil)
}

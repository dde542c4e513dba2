package transit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"astroscope/internal/ephemeris"
	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

const dateLayout = "2006-01-02"

// Config tunes how a scan is split and bounded.
type Config struct {
	// ChunkDays is the number of daily samples fetched per provider call.
	ChunkDays int
	// Workers bounds the number of chunk fetches in flight.
	Workers int
	// MaxYears caps the inclusive year span of a query.
	MaxYears int
	// Timeout bounds a whole scan. Zero leaves only the caller's deadline.
	Timeout time.Duration
	// RefineEntry enables bisection of each detected entry to sub-day
	// precision, reported in TransitEvent.EnteredAt.
	RefineEntry     bool
	RefinePrecision time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		ChunkDays:       366,
		Workers:         4,
		MaxYears:        200,
		Timeout:         25 * time.Second,
		RefinePrecision: time.Minute,
	}
}

// Metrics records scan volume. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordScan(ctx context.Context, body string, days, events int)
}

// Scanner finds sign entries by sampling a Provider once per day at 00:00 UTC.
//
// The range is split into chunks that are fetched concurrently in waves of
// Config.Workers. Detection walks each completed wave in ascending order and
// stops as soon as the limit is reached, so the result is identical to a
// sequential day-by-day scan.
type Scanner struct {
	provider ephemeris.Provider
	cfg      Config
	metrics  Metrics
	logger   *slog.Logger
}

// NewScanner creates a Scanner. metrics may be nil.
func NewScanner(provider ephemeris.Provider, cfg Config, metrics Metrics, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = def.ChunkDays
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.RefinePrecision <= 0 {
		cfg.RefinePrecision = def.RefinePrecision
	}
	return &Scanner{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// chunk is a contiguous run of daily samples. Index 0 of the overall run is
// the seed day before the range.
type chunk struct {
	start time.Time
	days  int
	out   []ephemeris.Position
}

// detector tracks the previous day's sample across chunk boundaries. The
// first sample it sees is the seed day and is never reported.
type detector struct {
	target zodiac.Sign
	prev   ephemeris.Position
	seeded bool
}

// step feeds the next sample. It returns the previous sample, whether pos is
// an entry into the target sign, and whether pos belongs to the range.
func (d *detector) step(pos ephemeris.Position) (prev ephemeris.Position, entered, inRange bool) {
	if !d.seeded {
		d.prev, d.seeded = pos, true
		return ephemeris.Position{}, false, false
	}
	prev, d.prev = d.prev, pos
	return prev, signOf(prev) != d.target && signOf(pos) == d.target, true
}

func signOf(p ephemeris.Position) zodiac.Sign {
	s, _ := zodiac.SignOf(p.Longitude)
	return s
}

// Scan runs q and returns at most q.Limit entry events in ascending date
// order. The day before Jan 1 of StartYear is sampled to seed the previous
// bucket, so a body already inside the sign when the range opens is not
// reported. Any provider failure fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, q Query) ([]types.TransitEvent, error) {
	if err := q.Validate(s.cfg.MaxYears); err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	rangeStart, rangeDays := q.Range()
	chunks := s.plan(rangeStart.AddDate(0, 0, -1), rangeDays+1)

	det := &detector{target: q.Sign}
	events := make([]types.TransitEvent, 0, min(q.Limit, 16))
	scanned := 0

scan:
	for w := 0; w < len(chunks); w += s.cfg.Workers {
		if err := ctx.Err(); err != nil {
			return nil, scanError(ctx, err)
		}

		wave := chunks[w:min(w+s.cfg.Workers, len(chunks))]
		if err := s.fetchWave(ctx, q.Body, wave); err != nil {
			return nil, scanError(ctx, err)
		}

		for _, c := range wave {
			for _, pos := range c.out {
				prev, entered, inRange := det.step(pos)
				if inRange {
					scanned++
				}
				if !entered {
					continue
				}
				ev, err := s.event(ctx, q, prev, pos)
				if err != nil {
					return nil, scanError(ctx, err)
				}
				events = append(events, ev)
				if len(events) >= q.Limit {
					break scan
				}
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordScan(ctx, q.Body.String(), scanned, len(events))
	}
	s.logger.InfoContext(ctx, "transit scan complete",
		"body", q.Body.String(),
		"sign", q.Sign.String(),
		"start_year", q.StartYear,
		"end_year", q.EndYear,
		"days_scanned", scanned,
		"events", len(events),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return events, nil
}

// plan splits days samples starting at first into chunks.
func (s *Scanner) plan(first time.Time, days int) []*chunk {
	chunks := make([]*chunk, 0, days/s.cfg.ChunkDays+1)
	for offset := 0; offset < days; offset += s.cfg.ChunkDays {
		chunks = append(chunks, &chunk{
			start: first.AddDate(0, 0, offset),
			days:  min(s.cfg.ChunkDays, days-offset),
		})
	}
	return chunks
}

// fetchWave loads every chunk of a wave concurrently. The first failure
// cancels the remaining fetches.
func (s *Scanner) fetchWave(ctx context.Context, body zodiac.Body, wave []*chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, c := range wave {
		g.Go(func() error {
			out, err := s.provider.DailySeries(gctx, body, c.start, c.days)
			if err != nil {
				return err
			}
			if len(out) != c.days {
				return types.NewAppError(
					types.ErrCodeUpstreamInvalidResponse,
					fmt.Sprintf("ephemeris returned %d samples for a %d day chunk", len(out), c.days),
					nil,
				)
			}
			c.out = out
			return nil
		})
	}
	return g.Wait()
}

func (s *Scanner) event(ctx context.Context, q Query, prev, cur ephemeris.Position) (types.TransitEvent, error) {
	lon, sign, deg := zodiac.Place(cur.Longitude, 4)
	ev := types.TransitEvent{
		Date:        cur.Time.Format(dateLayout),
		Description: fmt.Sprintf("%s entered %s", q.Body, q.Sign),
		CelestialBodies: []types.CelestialBodyPosition{{
			Name:         q.Body.String(),
			Longitude:    lon,
			Sign:         sign.String(),
			DegreeInSign: deg,
			IsRetrograde: zodiac.IsRetrograde(cur.Speed),
		}},
	}

	if s.cfg.RefineEntry {
		at, err := s.refine(ctx, q, prev.Time, cur.Time)
		if err != nil {
			return types.TransitEvent{}, err
		}
		ev.EnteredAt = &at
	}
	return ev, nil
}

// refine bisects (outside, inside] until the bracket is no wider than the
// configured precision and returns the earliest instant known to be inside.
func (s *Scanner) refine(ctx context.Context, q Query, outside, inside time.Time) (time.Time, error) {
	for inside.Sub(outside) > s.cfg.RefinePrecision {
		mid := outside.Add(inside.Sub(outside) / 2)
		pos, err := s.provider.Position(ctx, q.Body, mid)
		if err != nil {
			return time.Time{}, err
		}
		if signOf(pos) == q.Sign {
			inside = mid
		} else {
			outside = mid
		}
	}
	return inside.UTC(), nil
}

func scanError(ctx context.Context, err error) error {
	return ephemeris.AsAppError(ctx, err)
}

package ephemeris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"astroscope/internal/zodiac"
)

// ErrCacheMiss is returned by Cache.Get when no entry exists for the key.
var ErrCacheMiss = errors.New("ephemeris cache miss")

// cacheKeyVersion is bumped whenever the encoded entry layout changes.
const cacheKeyVersion = "v1"

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheMetrics records cache effectiveness. Implementations must be safe for
// concurrent use.
type CacheMetrics interface {
	RecordCacheLookup(ctx context.Context, provider string, hit bool)
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CachedProvider decorates a Provider with a read-through cache. Historical
// positions never change, so entries live for a long TTL. Cache failures are
// logged and bypassed; only errors from the wrapped provider reach callers.
//
// Daily series that start at midnight UTC are cached in calendar-year blocks
// so that scans over overlapping ranges share entries regardless of where
// their chunks begin.
type CachedProvider struct {
	next    Provider
	cache   Cache
	ttl     time.Duration
	codec   *codec
	metrics CacheMetrics
	logger  *slog.Logger
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with cache. metrics may be nil.
func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, metrics CacheMetrics, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		codec:   newCodec(),
		metrics: metrics,
		logger:  logger,
	}
}

// Name implements Provider.
func (p *CachedProvider) Name() string { return p.next.Name() }

// Position implements Provider.
func (p *CachedProvider) Position(ctx context.Context, body zodiac.Body, at time.Time) (Position, error) {
	at = at.UTC()
	key := p.key("pos", body.String(), at.Format(time.RFC3339Nano))

	var pos Position
	if p.lookup(ctx, key, &pos) {
		return pos, nil
	}

	pos, err := p.next.Position(ctx, body, at)
	if err != nil {
		return Position{}, err
	}
	p.store(ctx, key, pos)
	return pos, nil
}

// SiderealTime implements Provider.
func (p *CachedProvider) SiderealTime(ctx context.Context, at time.Time, obs Observer) (float64, error) {
	at = at.UTC()
	key := p.key("lst", at.Format(time.RFC3339Nano),
		fmt.Sprintf("%.6f,%.6f,%.3f", obs.Latitude, obs.Longitude, obs.Elevation))

	var lst float64
	if p.lookup(ctx, key, &lst) {
		return lst, nil
	}

	lst, err := p.next.SiderealTime(ctx, at, obs)
	if err != nil {
		return 0, err
	}
	p.store(ctx, key, lst)
	return lst, nil
}

// DailySeries implements Provider.
func (p *CachedProvider) DailySeries(ctx context.Context, body zodiac.Body, start time.Time, days int) ([]Position, error) {
	if days <= 0 {
		return nil, nil
	}
	start = start.UTC()
	if !start.Equal(start.Truncate(Day)) {
		return p.exactSeries(ctx, body, start, days)
	}

	out := make([]Position, 0, days)
	end := start.Add(time.Duration(days) * Day)
	for cursor := start; cursor.Before(end); {
		year := cursor.Year()
		block, err := p.yearBlock(ctx, body, year)
		if err != nil {
			return nil, err
		}

		offset := int(cursor.Sub(yearStart(year)) / Day)
		take := min(len(block)-offset, int(end.Sub(cursor)/Day))
		out = append(out, block[offset:offset+take]...)
		cursor = cursor.Add(time.Duration(take) * Day)
	}
	return out, nil
}

// yearBlock returns the midnight samples for every day of year.
func (p *CachedProvider) yearBlock(ctx context.Context, body zodiac.Body, year int) ([]Position, error) {
	key := p.key("year", body.String(), fmt.Sprintf("%04d", year))

	var block []Position
	days := daysInYear(year)
	if p.lookup(ctx, key, &block) && len(block) == days {
		return block, nil
	}

	block, err := p.next.DailySeries(ctx, body, yearStart(year), days)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, block)
	return block, nil
}

func (p *CachedProvider) exactSeries(ctx context.Context, body zodiac.Body, start time.Time, days int) ([]Position, error) {
	key := p.key("series", body.String(), start.Format(time.RFC3339Nano), fmt.Sprint(days))

	var series []Position
	if p.lookup(ctx, key, &series) && len(series) == days {
		return series, nil
	}

	series, err := p.next.DailySeries(ctx, body, start, days)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, series)
	return series, nil
}

// lookup decodes a cached entry into v and reports whether it was a hit.
func (p *CachedProvider) lookup(ctx context.Context, key string, v any) bool {
	data, err := p.cache.Get(ctx, key)
	switch {
	case errors.Is(err, ErrCacheMiss):
		p.record(ctx, false)
		return false
	case err != nil:
		p.logger.WarnContext(ctx, "ephemeris cache read failed", "key", key, "error", err)
		p.record(ctx, false)
		return false
	}

	if err := p.codec.decode(data, v); err != nil {
		p.logger.WarnContext(ctx, "discarding corrupt ephemeris cache entry", "key", key, "error", err)
		p.record(ctx, false)
		return false
	}
	p.record(ctx, true)
	return true
}

func (p *CachedProvider) store(ctx context.Context, key string, v any) {
	data, err := p.codec.encode(v)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to encode ephemeris cache entry", "key", key, "error", err)
		return
	}
	if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
		p.logger.WarnContext(ctx, "ephemeris cache write failed", "key", key, "error", err)
	}
}

func (p *CachedProvider) record(ctx context.Context, hit bool) {
	if p.metrics != nil {
		p.metrics.RecordCacheLookup(ctx, p.next.Name(), hit)
	}
}

func (p *CachedProvider) key(kind string, parts ...string) string {
	k := "ephem:" + cacheKeyVersion + ":" + p.next.Name() + ":" + kind
	for _, part := range parts {
		k += ":" + part
	}
	return k
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func daysInYear(year int) int {
	return int(yearStart(year+1).Sub(yearStart(year)) / Day)
}

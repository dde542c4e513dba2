package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix   = "astroscope:ratelimit:"
	idempotencyKeyPrefix = "astroscope:idempotency:"
)

// RedisRateLimitStore is a fixed-window counter shared by every instance.
type RedisRateLimitStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisRateLimitStore wraps a go-redis client.
func NewRedisRateLimitStore(client redis.Cmdable) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, now: time.Now}
}

// IncrementAndCheck implements RateLimitStore. The counter for the current
// window expires with it.
func (s *RedisRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := s.now()
	start := now.Truncate(window)
	resetAt := start.Add(window)
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, start.Unix())

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.PExpireAt(ctx, redisKey, resetAt)
		return nil
	})
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit increment: %w", err)
	}

	count := int(incr.Val())
	return RateLimitResult{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}

// RedisIdempotencyStore keeps idempotency records as JSON values with a TTL.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a store whose records live for ttl.
func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

// Get implements IdempotencyStore.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency get: %w", err)
	}

	var rec IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &rec, nil
}

// Create implements IdempotencyStore with SET NX.
func (s *RedisIdempotencyStore) Create(ctx context.Context, key string) error {
	raw, err := json.Marshal(IdempotencyRecord{Status: IdempotencyStatusProcessing})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("idempotency create: %w", err)
	}
	if !ok {
		return ErrIdempotencyKeyExists
	}
	return nil
}

// Complete implements IdempotencyStore.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, rec IdempotencyRecord) error {
	rec.Status = IdempotencyStatusCompleted
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release implements IdempotencyStore.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

// RedisHealthProbe pings Redis. The API degrades without it: the ephemeris
// cache misses and traffic controls fail open.
type RedisHealthProbe struct {
	client redis.Cmdable
}

// NewRedisHealthProbe creates a probe for client.
func NewRedisHealthProbe(client redis.Cmdable) *RedisHealthProbe {
	return &RedisHealthProbe{client: client}
}

func (p *RedisHealthProbe) Name() string { return "redis" }

func (p *RedisHealthProbe) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisHealthProbe) Optional() bool { return true }

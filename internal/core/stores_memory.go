package core

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRateLimitStore is a per-key token bucket for single-instance
// deployments. A bucket holds limit tokens and refills one every window/limit.
type MemoryRateLimitStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewMemoryRateLimitStore creates an empty store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{buckets: make(map[string]*bucket), now: time.Now}
}

// IncrementAndCheck implements RateLimitStore.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := m.now()
	interval := window / time.Duration(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now, window)

	b, ok := m.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(interval), limit),
			limit:   limit,
			window:  window,
		}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	res := RateLimitResult{Allowed: allowed, Remaining: max(int(math.Floor(tokens)), 0)}
	if allowed {
		res.ResetAt = now.Add(time.Duration((float64(limit) - tokens) * float64(interval)))
	} else {
		res.ResetAt = now.Add(time.Duration((1 - tokens) * float64(interval)))
	}
	return res, nil
}

// sweep drops buckets idle for a full window; an idle bucket is full again
// and equivalent to a fresh one. Runs at most once per window.
func (m *MemoryRateLimitStore) sweep(now time.Time, window time.Duration) {
	if now.Sub(m.lastSweep) < window {
		return
	}
	m.lastSweep = now
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) >= b.window {
			delete(m.buckets, k)
		}
	}
}

// MemoryIdempotencyStore keeps idempotency records in process memory until
// their TTL passes.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

type memoryRecord struct {
	rec     IdempotencyRecord
	expires time.Time
}

// NewMemoryIdempotencyStore creates a store whose records live for ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]memoryRecord), ttl: ttl, now: time.Now}
}

// Get implements IdempotencyStore.
func (m *MemoryIdempotencyStore) Get(_ context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(r.expires) {
		delete(m.records, key)
		return nil, nil
	}
	rec := r.rec
	return &rec, nil
}

// Create implements IdempotencyStore.
func (m *MemoryIdempotencyStore) Create(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if r, ok := m.records[key]; ok && now.Before(r.expires) {
		return ErrIdempotencyKeyExists
	}
	m.records[key] = memoryRecord{
		rec:     IdempotencyRecord{Status: IdempotencyStatusProcessing},
		expires: now.Add(m.ttl),
	}
	return nil
}

// Complete implements IdempotencyStore.
func (m *MemoryIdempotencyStore) Complete(_ context.Context, key string, rec IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Status = IdempotencyStatusCompleted
	m.records[key] = memoryRecord{rec: rec, expires: m.now().Add(m.ttl)}
	return nil
}

// Release implements IdempotencyStore.
func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

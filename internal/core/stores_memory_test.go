package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryRateLimitStore_BucketRefills(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryRateLimitStore()
	store.now = clock.now
	ctx := context.Background()

	for i := range 2 {
		res, err := store.IncrementAndCheck(ctx, "ip", 2, time.Minute)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed: %+v %v", i, res, err)
		}
		if res.Remaining != 1-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 1-i, res.Remaining)
		}
	}

	res, _ := store.IncrementAndCheck(ctx, "ip", 2, time.Minute)
	if res.Allowed {
		t.Fatal("third request should be denied")
	}
	if want := clock.t.Add(30 * time.Second); !res.ResetAt.Equal(want) {
		t.Errorf("expected reset at %s, got %s", want, res.ResetAt)
	}

	// Other keys are independent.
	if res, _ := store.IncrementAndCheck(ctx, "other", 2, time.Minute); !res.Allowed {
		t.Error("separate key should have its own bucket")
	}

	clock.advance(31 * time.Second)
	if res, _ := store.IncrementAndCheck(ctx, "ip", 2, time.Minute); !res.Allowed {
		t.Error("one token should have refilled after window/limit")
	}
}

func TestMemoryRateLimitStore_SweepsIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryRateLimitStore()
	store.now = clock.now
	ctx := context.Background()

	_, _ = store.IncrementAndCheck(ctx, "a", 5, time.Minute)
	_, _ = store.IncrementAndCheck(ctx, "b", 5, time.Minute)
	clock.advance(2 * time.Minute)
	_, _ = store.IncrementAndCheck(ctx, "c", 5, time.Minute)

	if len(store.buckets) != 1 {
		t.Errorf("expected idle buckets to be swept, have %d", len(store.buckets))
	}
}

func TestMemoryIdempotencyStore_Lifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryIdempotencyStore(time.Hour)
	store.now = clock.now
	ctx := context.Background()

	if rec, err := store.Get(ctx, "k"); rec != nil || err != nil {
		t.Fatalf("expected empty store, got %+v %v", rec, err)
	}
	if err := store.Create(ctx, "k"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "k"); !errors.Is(err, ErrIdempotencyKeyExists) {
		t.Errorf("expected ErrIdempotencyKeyExists, got %v", err)
	}

	rec, _ := store.Get(ctx, "k")
	if rec == nil || rec.Status != IdempotencyStatusProcessing {
		t.Fatalf("expected processing record, got %+v", rec)
	}

	if err := store.Complete(ctx, "k", IdempotencyRecord{ResponseCode: 201, ResponseBody: []byte("{}")}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, _ = store.Get(ctx, "k")
	if rec.Status != IdempotencyStatusCompleted || rec.ResponseCode != 201 {
		t.Errorf("unexpected completed record %+v", rec)
	}

	clock.advance(time.Hour)
	if rec, _ := store.Get(ctx, "k"); rec != nil {
		t.Error("record should expire after ttl")
	}
	if err := store.Create(ctx, "k"); err != nil {
		t.Errorf("expired key should be reusable: %v", err)
	}

	if err := store.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if rec, _ := store.Get(ctx, "k"); rec != nil {
		t.Error("released key should be gone")
	}
}

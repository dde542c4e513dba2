package core

import (
	"context"
	"errors"
	"time"
)

// RateLimitStore abstracts the backing store for rate limiting. Redis backs
// multi-instance deployments; a token-bucket store serves a single process.
type RateLimitStore interface {
	// IncrementAndCheck records one request for key and reports whether it
	// fits within limit requests per window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// IdempotencyStatus is the lifecycle state of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is a stored response keyed by the client's
// Idempotency-Key.
type IdempotencyRecord struct {
	Status       IdempotencyStatus `json:"status"`
	ResponseCode int               `json:"response_code,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Disposition  string            `json:"disposition,omitempty"`
	ResponseBody []byte            `json:"response_body,omitempty"`
}

// ErrIdempotencyKeyExists is returned by Create when the key is already held.
var ErrIdempotencyKeyExists = errors.New("idempotency key already exists")

// IdempotencyStore persists idempotency records.
type IdempotencyStore interface {
	// Get returns the record for key, or nil when absent.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	// Create atomically claims key in the processing state. It returns
	// ErrIdempotencyKeyExists when another request holds the key.
	Create(ctx context.Context, key string) error
	// Complete stores the final response for key.
	Complete(ctx context.Context, key string, rec IdempotencyRecord) error
	// Release drops key so the request can be retried.
	Release(ctx context.Context, key string) error
}

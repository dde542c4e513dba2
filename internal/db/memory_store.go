package db

import (
	"context"
	"slices"
	"sync"

	"astroscope/internal/types"
)

// MemoryStore keeps saved searches in process memory. Contents are lost on
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*types.SavedSearch
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a copy of s.
func (m *MemoryStore) Save(_ context.Context, s *types.SavedSearch) error {
	rec := *s
	rec.Query = slices.Clone(s.Query)
	rec.Data = slices.Clone(s.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &rec)
	return nil
}

// ListByUser returns copies of the user's records, newest first.
func (m *MemoryStore) ListByUser(ctx context.Context, namespace, userID string, limit int) ([]*types.SavedSearch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []*types.SavedSearch
	for _, r := range m.records {
		if r.Namespace == namespace && r.UserID == userID {
			c := *r
			out = append(out, &c)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *types.SavedSearch) int {
		if c := b.SavedAt.Compare(a.SavedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

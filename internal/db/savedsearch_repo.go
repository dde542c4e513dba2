package db

import (
	"context"
	"encoding/json"
	"errors"

	"astroscope/internal/types"
)

// SavedSearchRepository provides data access for the saved_searches table.
type SavedSearchRepository struct {
	db DBTX
}

// NewSavedSearchRepository creates a new SavedSearchRepository backed by the
// given database connection (pool or transaction).
func NewSavedSearchRepository(db DBTX) *SavedSearchRepository {
	return &SavedSearchRepository{db: db}
}

const savedSearchColumns = `id, namespace, user_id, search_query, search_data, saved_at`

// Save inserts a new saved search. Query and data are stored as JSONB.
func (r *SavedSearchRepository) Save(ctx context.Context, s *types.SavedSearch) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO saved_searches (`+savedSearchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Namespace, s.UserID, []byte(s.Query), []byte(s.Data), s.SavedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert saved search", err)
	}
	return nil
}

// ListByUser returns the user's saved searches in the namespace, newest first.
// Ties on saved_at are broken by id so pages are stable.
func (r *SavedSearchRepository) ListByUser(ctx context.Context, namespace, userID string, limit int) ([]*types.SavedSearch, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+savedSearchColumns+`
		 FROM saved_searches
		 WHERE namespace = $1 AND user_id = $2
		 ORDER BY saved_at DESC, id
		 LIMIT $3`,
		namespace, userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list saved searches", err)
	}
	defer rows.Close()

	var out []*types.SavedSearch
	for rows.Next() {
		var (
			s           types.SavedSearch
			query, data []byte
		)
		if err := rows.Scan(&s.ID, &s.Namespace, &s.UserID, &query, &data, &s.SavedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan saved search row", err)
		}
		s.Query = json.RawMessage(query)
		s.Data = json.RawMessage(data)
		s.SavedAt = s.SavedAt.UTC()
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating saved search rows", err)
	}
	return out, nil
}

// Ping checks connectivity when the underlying connection supports it,
// otherwise it runs a trivial query.
func (r *SavedSearchRepository) Ping(ctx context.Context) error {
	if p, ok := r.db.(pinger); ok {
		return p.Ping(ctx)
	}
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return errors.Join(errors.New("database unreachable"), err)
	}
	return nil
}

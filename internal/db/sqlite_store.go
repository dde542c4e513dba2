package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"astroscope/internal/types"
)

// sqliteSchemaVersion is the current schema version of the SQLite store.
const sqliteSchemaVersion = 1

// SQLiteStore persists saved searches in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("open sqlite: create db dir: %w", err)
		}
	}

	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: ping: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("migrate sqlite: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("migrate sqlite: read current version: %w", err)
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saved_searches (
			id           TEXT PRIMARY KEY,
			namespace    TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			search_query TEXT NOT NULL,
			search_data  TEXT NOT NULL,
			saved_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS saved_searches_owner_idx
			ON saved_searches (namespace, user_id, saved_at DESC)`,
		`INSERT INTO schema_migrations (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate sqlite: commit: %w", err)
	}
	return nil
}

// Save inserts a saved search. saved_at is stored as Unix nanoseconds.
func (s *SQLiteStore) Save(ctx context.Context, rec *types.SavedSearch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_searches (`+savedSearchColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Namespace, rec.UserID, string(rec.Query), string(rec.Data), rec.SavedAt.UnixNano(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert saved search", err)
	}
	return nil
}

// ListByUser returns the user's saved searches in the namespace, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, namespace, userID string, limit int) ([]*types.SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+savedSearchColumns+`
		 FROM saved_searches
		 WHERE namespace = ? AND user_id = ?
		 ORDER BY saved_at DESC, id
		 LIMIT ?`,
		namespace, userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list saved searches", err)
	}
	defer rows.Close()

	var out []*types.SavedSearch
	for rows.Next() {
		var (
			rec         types.SavedSearch
			query, data string
			savedAt     int64
		)
		if err := rows.Scan(&rec.ID, &rec.Namespace, &rec.UserID, &query, &data, &savedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan saved search row", err)
		}
		rec.Query = []byte(query)
		rec.Data = []byte(data)
		rec.SavedAt = time.Unix(0, savedAt).UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating saved search rows", err)
	}
	return out, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema is applied idempotently on startup.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS saved_searches (
	id           TEXT PRIMARY KEY,
	namespace    TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	search_query JSONB NOT NULL,
	search_data  JSONB NOT NULL,
	saved_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS saved_searches_owner_idx
	ON saved_searches (namespace, user_id, saved_at DESC);
`

// PoolOptions tunes the connection pool. Zero values keep pgx defaults.
type PoolOptions struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// OpenPostgres connects a pool, verifies it and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigratePostgres creates the saved_searches table and index if missing.
func MigratePostgres(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate saved_searches: %w", err)
	}
	return nil
}

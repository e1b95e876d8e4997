package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/auction-sync/internal/config"
)

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auction_bids (
		bid_id      TEXT PRIMARY KEY,
		item_id     TEXT NOT NULL,
		user_id     TEXT NOT NULL DEFAULT '',
		username    TEXT NOT NULL DEFAULT '',
		bid_amount  NUMERIC NOT NULL,
		bid_ts      TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS auction_bids_item_ts_idx ON auction_bids (item_id, bid_ts DESC)`,
	`CREATE TABLE IF NOT EXISTS auction_states (
		item_id        TEXT NOT NULL,
		revision       BIGINT NOT NULL,
		status         TEXT NOT NULL,
		current_price  NUMERIC NOT NULL,
		highest_bidder TEXT,
		bid_count      INTEGER NOT NULL DEFAULT 0,
		observed_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (item_id, observed_at, revision)
	)`,
}

// EnsureSchema creates the journal tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

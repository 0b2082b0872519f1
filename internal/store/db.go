package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Batcher sends queued statements in one round trip.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Batcher
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS match_odds (
		match_id    INTEGER PRIMARY KEY,
		team_a      TEXT NOT NULL,
		team_b      TEXT NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		team_a_odds DOUBLE PRECISION,
		team_b_odds DOUBLE PRECISION,
		updated_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS match_odds_start_time ON match_odds (start_time)`,
	`CREATE TABLE IF NOT EXISTS odds_history (
		id          UUID PRIMARY KEY,
		match_id    INTEGER NOT NULL,
		team_a_odds DOUBLE PRECISION NOT NULL,
		team_b_odds DOUBLE PRECISION NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS odds_history_match_updated ON odds_history (match_id, updated_at)`,
}

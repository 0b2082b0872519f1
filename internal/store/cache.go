package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/odds-feed/internal/model"
)

const (
	selectItemsSQL = `
		SELECT match_id, team_a, team_b, start_time, team_a_odds, team_b_odds, updated_at
		FROM match_odds
		ORDER BY start_time, match_id`

	upsertItemSQL = `
		INSERT INTO match_odds (match_id, team_a, team_b, start_time, team_a_odds, team_b_odds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id) DO UPDATE SET
			team_a = EXCLUDED.team_a,
			team_b = EXCLUDED.team_b,
			start_time = EXCLUDED.start_time,
			team_a_odds = EXCLUDED.team_a_odds,
			team_b_odds = EXCLUDED.team_b_odds,
			updated_at = EXCLUDED.updated_at`

	deleteItemsSQL = `DELETE FROM match_odds`
)

// cacheRow is one match_odds row. Odds columns are NULL until known.
type cacheRow struct {
	MatchID   int
	TeamA     string
	TeamB     string
	StartTime time.Time
	TeamAOdds *float64
	TeamBOdds *float64
	UpdatedAt *time.Time
}

func rowFromItem(item model.MatchOddsItem) cacheRow {
	r := cacheRow{
		MatchID:   item.Match.ID,
		TeamA:     item.Match.TeamA,
		TeamB:     item.Match.TeamB,
		StartTime: item.Match.StartTime,
	}
	if o := item.Odds; o != nil {
		a, b, at := o.TeamAOdds, o.TeamBOdds, o.UpdatedAt
		r.TeamAOdds, r.TeamBOdds, r.UpdatedAt = &a, &b, &at
	}
	return r
}

// item converts the row back. Odds are only restored when every odds
// column is set.
func (r cacheRow) item() model.MatchOddsItem {
	item := model.MatchOddsItem{Match: model.Match{
		ID:        r.MatchID,
		TeamA:     r.TeamA,
		TeamB:     r.TeamB,
		StartTime: r.StartTime,
	}}
	if r.TeamAOdds != nil && r.TeamBOdds != nil && r.UpdatedAt != nil {
		item = item.WithOdds(model.OddsSnapshot{
			MatchID:   r.MatchID,
			TeamAOdds: *r.TeamAOdds,
			TeamBOdds: *r.TeamBOdds,
			UpdatedAt: *r.UpdatedAt,
		})
	}
	return item
}

func (r cacheRow) args() []any {
	return []any{r.MatchID, r.TeamA, r.TeamB, r.StartTime, r.TeamAOdds, r.TeamBOdds, r.UpdatedAt}
}

// Cache stores the board's rows so a restart can show the last known odds
// when the catalog is unavailable.
type Cache struct {
	db     DB
	logger *slog.Logger
}

// NewCache creates a cache on db.
func NewCache(db DB, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, logger: logger.With("component", "cache")}
}

// Migrate creates the tables and indexes if they do not exist.
func (c *Cache) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	c.logger.Info("schema migrated")
	return nil
}

// LoadItems returns every cached row ordered by start time.
func (c *Cache) LoadItems(ctx context.Context) ([]model.MatchOddsItem, error) {
	rows, err := c.db.Query(ctx, selectItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("query match_odds: %w", err)
	}

	cached, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cacheRow, error) {
		var r cacheRow
		err := row.Scan(&r.MatchID, &r.TeamA, &r.TeamB, &r.StartTime, &r.TeamAOdds, &r.TeamBOdds, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan match_odds: %w", err)
	}

	items := make([]model.MatchOddsItem, 0, len(cached))
	for _, r := range cached {
		items = append(items, r.item())
	}
	return items, nil
}

// ReplaceAll atomically replaces every cached row with items.
func (c *Cache) ReplaceAll(ctx context.Context, items []model.MatchOddsItem) error {
	err := pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteItemsSQL); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, item := range items {
			batch.Queue(upsertItemSQL, rowFromItem(item).args()...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("replace match_odds: %w", err)
	}
	c.logger.Debug("cache replaced", "rows", len(items))
	return nil
}

// SaveItem inserts or replaces one row.
func (c *Cache) SaveItem(ctx context.Context, item model.MatchOddsItem) error {
	if _, err := c.db.Exec(ctx, upsertItemSQL, rowFromItem(item).args()...); err != nil {
		return fmt.Errorf("save match %d: %w", item.ID(), err)
	}
	return nil
}

// Clear deletes every cached row.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, deleteItemsSQL); err != nil {
		return fmt.Errorf("clear match_odds: %w", err)
	}
	return nil
}

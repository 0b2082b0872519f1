package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/odds-feed/internal/buffer"
	"github.com/rickgao/odds-feed/internal/model"
)

const (
	updateOddsSQL = `
		UPDATE match_odds
		SET team_a_odds = $2, team_b_odds = $3, updated_at = $4
		WHERE match_id = $1 AND (updated_at IS NULL OR updated_at <= $4)`

	insertHistorySQL = `
		INSERT INTO odds_history (id, match_id, team_a_odds, team_b_odds, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
)

// WriterConfig contains configuration for the odds writer.
type WriterConfig struct {
	// BatchSize is the number of updates to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the input queue. The queue grows
	// past it rather than dropping updates.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// WriterMetrics holds metrics for the odds writer.
type WriterMetrics struct {
	Inserts  int64 `json:"inserts"`  // odds_history rows written
	Updates  int64 `json:"updates"`  // match_odds rows refreshed
	Stale    int64 `json:"stale"`    // updates older than the cached row, or for unknown matches
	Errors   int64 `json:"errors"`   // failed flushes
	Flushes  int64 `json:"flushes"`  // successful flushes
	Rejected int64 `json:"rejected"` // enqueued after Stop
}

// oddsRow is one odds_history row and the match_odds refresh it implies.
type oddsRow struct {
	ID        uuid.UUID
	MatchID   int
	TeamAOdds float64
	TeamBOdds float64
	UpdatedAt time.Time
}

// OddsWriter records odds updates: each one refreshes the cached match row
// and is appended to the history table. Updates are batched and flushed on
// size or interval.
type OddsWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	newID  func() uuid.UUID

	// Input from the board
	input *buffer.Growable[model.OddsSnapshot]

	// Database
	db Batcher

	// Batching
	batch   []oddsRow
	batchMu sync.Mutex

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	consumed chan struct{} // closed when the input is drained
	wg       sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewOddsWriter creates a writer. Call Start before enqueueing.
func NewOddsWriter(cfg WriterConfig, db Batcher, logger *slog.Logger) *OddsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &OddsWriter{
		cfg:    cfg,
		logger: logger.With("component", "odds_writer"),
		newID:  uuid.New,
		input:  buffer.NewGrowable[model.OddsSnapshot](cfg.BufferSize),
		db:     db,
		batch:  make([]oddsRow, 0, cfg.BatchSize),
	}
}

// Enqueue queues one update. It reports false once the writer is stopping.
func (w *OddsWriter) Enqueue(s model.OddsSnapshot) bool {
	if !w.input.Push(s) {
		w.batchMu.Lock()
		w.metrics.Rejected++
		w.batchMu.Unlock()
		return false
	}
	return true
}

// Start begins consuming updates and writing to the database.
func (w *OddsWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.consumed = make(chan struct{})
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("odds writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued updates and flushes them, waiting at most until ctx
// ends. It reports a drain that ran out of time and a failed final flush.
func (w *OddsWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping odds writer")

	// Closing the input lets the consumer drain what is queued, then exit.
	w.input.Close()

	var errs []error
	if w.consumed != nil {
		select {
		case <-w.consumed:
		case <-ctx.Done():
			w.logger.Warn("odds writer stop timed out", "queued", w.input.Len())
			errs = append(errs, fmt.Errorf("drain odds queue: %w", ctx.Err()))
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	// Final flush
	if err := w.flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}

	w.logger.Info("odds writer stopped")
	return errors.Join(errs...)
}

// Stats returns current metrics.
func (w *OddsWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves updates from the input queue into the batch until the
// queue is closed and drained.
func (w *OddsWriter) consumeLoop() {
	defer close(w.consumed)

	for {
		s, ok := w.input.Pop()
		if !ok {
			return
		}
		w.handle(s)
	}
}

// flushLoop periodically flushes the batch.
func (w *OddsWriter) flushLoop() {
	defer w.wg.Done()

	t := time.NewTicker(w.cfg.FlushInterval)
	defer t.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			w.flush(w.ctx)
		}
	}
}

func (w *OddsWriter) handle(s model.OddsSnapshot) {
	row := w.transform(s)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts an update to its history row.
func (w *OddsWriter) transform(s model.OddsSnapshot) oddsRow {
	return oddsRow{
		ID:        w.newID(),
		MatchID:   s.MatchID,
		TeamAOdds: s.TeamAOdds,
		TeamBOdds: s.TeamBOdds,
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

// flush writes the current batch to the database. A failed batch is logged,
// counted and dropped.
func (w *OddsWriter) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]oddsRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	updated, inserted, err := w.batchWrite(ctx, batch)
	if err != nil {
		w.logger.Error("batch write failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Updates += int64(updated)
	w.metrics.Inserts += int64(inserted)
	w.metrics.Stale += int64(len(batch) - updated)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed odds",
		"count", len(batch),
		"updated", updated,
		"duration", time.Since(start),
	)
	return nil
}

// batchWrite queues a match_odds refresh and a history insert per row and
// sends them in one batch.
func (w *OddsWriter) batchWrite(ctx context.Context, rows []oddsRow) (updated, inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(updateOddsSQL, r.MatchID, r.TeamAOdds, r.TeamBOdds, r.UpdatedAt)
		batch.Queue(insertHistorySQL, r.ID, r.MatchID, r.TeamAOdds, r.TeamBOdds, r.UpdatedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, 0, err
		}
		updated += int(ct.RowsAffected())

		ct, err = results.Exec()
		if err != nil {
			return 0, 0, err
		}
		inserted += int(ct.RowsAffected())
	}

	return updated, inserted, nil
}

package feed

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/odds"
	"github.com/rickgao/odds-feed/internal/stream"
)

// DefaultUpdateInterval is the minimum spacing between odds updates.
const DefaultUpdateInterval = 1500 * time.Millisecond

// ErrNoMatches is returned when the catalog lists no matches.
var ErrNoMatches = errors.New("feed: no matches")

// Catalog provides the match list and opening odds.
type Catalog interface {
	FetchMatches(ctx context.Context) ([]model.Match, error)
	FetchInitialOdds(ctx context.Context) ([]model.OddsSnapshot, error)
}

// Service loads feed data and starts odds streams.
type Service struct {
	catalog   Catalog
	generator *odds.Generator
	ticker    *stream.Ticker[model.OddsSnapshot]
	interval  time.Duration
	logger    *slog.Logger
}

// NewService creates a service. interval <= 0 means DefaultUpdateInterval.
func NewService(catalog Catalog, generator *odds.Generator, ticker *stream.Ticker[model.OddsSnapshot], interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:   catalog,
		generator: generator,
		ticker:    ticker,
		interval:  interval,
		logger:    logger.With("component", "feed"),
	}
}

// LoadMatches returns the catalog's matches ordered by start time.
func (s *Service) LoadMatches(ctx context.Context) ([]model.Match, error) {
	matches, err := s.catalog.FetchMatches(ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	slices.SortStableFunc(matches, func(a, b model.Match) int {
		return cmp.Compare(a.StartTime.UnixNano(), b.StartTime.UnixNano())
	})
	return matches, nil
}

// LoadInitialOdds fetches the opening odds and seeds the generator with
// them.
func (s *Service) LoadInitialOdds(ctx context.Context) ([]model.OddsSnapshot, error) {
	snapshots, err := s.catalog.FetchInitialOdds(ctx)
	if err != nil {
		return nil, err
	}
	s.generator.Seed(snapshots)
	s.logger.Info("generator seeded", "matches", len(snapshots))
	return snapshots, nil
}

// OddsUpdates starts a new odds stream, replacing any previous one.
func (s *Service) OddsUpdates() *stream.Stream[model.OddsSnapshot] {
	st := s.ticker.Stream(s.interval, s.generator.Next)
	s.logger.Info("odds stream started", "session", st.ID().String(), "interval", s.interval)
	return st
}

// StopOddsStream stops the current odds stream, if any.
func (s *Service) StopOddsStream() {
	s.ticker.Stop()
}

// StreamStatus reports the status of the current odds stream.
func (s *Service) StreamStatus() stream.Status {
	return s.ticker.Status()
}

// StreamStats returns the current stream's counters. ok is false when no
// stream is active.
func (s *Service) StreamStats() (stats stream.Stats, ok bool) {
	cur := s.ticker.Current()
	if cur == nil {
		return stream.Stats{}, false
	}
	return cur.Stats(), true
}

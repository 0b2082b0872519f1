// Package catalog serves the match list and opening odds the feed starts
// from. Fixtures are embedded in the binary; a directory on disk can be
// used instead. Each fetch waits a configured latency to mimic a remote
// API.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/odds-feed/internal/model"
)

const (
	matchesFile = "matches.json"
	oddsFile    = "odds.json"
)

//go:embed data/matches.json data/odds.json
var fixtures embed.FS

var (
	// ErrMissingResource is returned when a fixture file does not exist.
	ErrMissingResource = errors.New("catalog: missing resource")

	// ErrDecode is returned when a fixture file cannot be parsed.
	ErrDecode = errors.New("catalog: decode failed")
)

// Config controls where fixtures come from and how slow fetches are.
type Config struct {
	Dir            string        `yaml:"dir"`             // empty uses the embedded fixtures
	MatchesLatency time.Duration `yaml:"matches_latency"` // delay before FetchMatches returns
	OddsLatency    time.Duration `yaml:"odds_latency"`    // delay before FetchInitialOdds returns
}

// DefaultConfig returns the embedded fixtures with the usual latencies.
func DefaultConfig() Config {
	return Config{
		MatchesLatency: 120 * time.Millisecond,
		OddsLatency:    90 * time.Millisecond,
	}
}

// Catalog reads match and odds fixtures.
type Catalog struct {
	cfg    Config
	files  fs.FS
	now    func() time.Time
	logger *slog.Logger
}

// New creates a catalog from cfg.
func New(cfg Config, logger *slog.Logger) *Catalog {
	var files fs.FS
	if cfg.Dir != "" {
		files = os.DirFS(cfg.Dir)
	} else {
		files, _ = fs.Sub(fixtures, "data") // static path, cannot fail
	}
	return NewFromFS(cfg, files, logger)
}

// NewFromFS creates a catalog reading fixtures from files.
func NewFromFS(cfg Config, files fs.FS, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		cfg:    cfg,
		files:  files,
		now:    time.Now,
		logger: logger.With("component", "catalog"),
	}
}

type matchDTO struct {
	MatchID   int       `json:"matchID"`
	TeamA     string    `json:"teamA"`
	TeamB     string    `json:"teamB"`
	StartTime time.Time `json:"startTime"`
}

type oddsDTO struct {
	MatchID   int     `json:"matchID"`
	TeamAOdds float64 `json:"teamAOdds"`
	TeamBOdds float64 `json:"teamBOdds"`
}

// FetchMatches returns every match in fixture order.
func (c *Catalog) FetchMatches(ctx context.Context) ([]model.Match, error) {
	if err := sleepCtx(ctx, c.cfg.MatchesLatency); err != nil {
		return nil, err
	}

	var dtos []matchDTO
	if err := c.decode(matchesFile, &dtos); err != nil {
		return nil, err
	}

	matches := make([]model.Match, 0, len(dtos))
	for _, d := range dtos {
		matches = append(matches, model.Match{
			ID:        d.MatchID,
			TeamA:     d.TeamA,
			TeamB:     d.TeamB,
			StartTime: d.StartTime,
		})
	}
	c.logger.Debug("matches fetched", "count", len(matches))
	return matches, nil
}

// FetchInitialOdds returns the opening odds, stamped with the fetch time.
func (c *Catalog) FetchInitialOdds(ctx context.Context) ([]model.OddsSnapshot, error) {
	if err := sleepCtx(ctx, c.cfg.OddsLatency); err != nil {
		return nil, err
	}

	var dtos []oddsDTO
	if err := c.decode(oddsFile, &dtos); err != nil {
		return nil, err
	}

	now := c.now()
	odds := make([]model.OddsSnapshot, 0, len(dtos))
	for _, d := range dtos {
		odds = append(odds, model.OddsSnapshot{
			MatchID:   d.MatchID,
			TeamAOdds: d.TeamAOdds,
			TeamBOdds: d.TeamBOdds,
			UpdatedAt: now,
		})
	}
	c.logger.Debug("initial odds fetched", "count", len(odds))
	return odds, nil
}

func (c *Catalog) decode(name string, v any) error {
	data, err := fs.ReadFile(c.files, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingResource, name)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	return nil
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

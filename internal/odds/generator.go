// Package odds produces simulated odds movements for the feed.
package odds

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/odds-feed/internal/model"
)

// Config bounds each odds movement and the odds themselves.
type Config struct {
	DeltaMin float64 `yaml:"delta_min"` // smallest move per update
	DeltaMax float64 `yaml:"delta_max"` // largest move per update
	MinOdds  float64 `yaml:"min_odds"`
	MaxOdds  float64 `yaml:"max_odds"`
	Decimals int     `yaml:"decimals"`
}

// DefaultConfig returns the bounds used by the daemon.
func DefaultConfig() Config {
	return Config{
		DeltaMin: 0.3,
		DeltaMax: 4.0,
		MinOdds:  1.10,
		MaxOdds:  4.50,
		Decimals: 2,
	}
}

func (c Config) normalized() Config {
	c.DeltaMin = math.Abs(c.DeltaMin)
	c.DeltaMax = math.Abs(c.DeltaMax)
	if c.DeltaMin > c.DeltaMax {
		c.DeltaMin, c.DeltaMax = c.DeltaMax, c.DeltaMin
	}
	if c.MinOdds > c.MaxOdds {
		c.MinOdds, c.MaxOdds = c.MaxOdds, c.MinOdds
	}
	if c.Decimals < 0 {
		c.Decimals = 0
	}
	return c
}

// Generator holds the current odds per match and moves one match per call
// to Next. Safe for concurrent use.
type Generator struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	rnd       *rand.Rand
	snapshots []model.OddsSnapshot
}

// NewGenerator creates an empty generator. A nil rnd or now falls back to a
// randomly seeded source and time.Now.
func NewGenerator(cfg Config, rnd *rand.Rand, now func() time.Time) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{
		cfg: cfg.normalized(),
		now: now,
		rnd: rnd,
	}
}

// Seed replaces the held snapshots.
func (g *Generator) Seed(snapshots []model.OddsSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshots = append([]model.OddsSnapshot(nil), snapshots...)
}

// Len returns how many matches the generator holds.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.snapshots)
}

// Snapshots returns a copy of the current odds.
func (g *Generator) Snapshots() []model.OddsSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.OddsSnapshot(nil), g.snapshots...)
}

// Next moves the odds of one randomly chosen match and returns the new
// snapshot. Team A moves by a signed delta and team B by its opposite, both
// rounded and clamped. It reports false when no odds are held.
func (g *Generator) Next() (model.OddsSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.snapshots) == 0 {
		return model.OddsSnapshot{}, false
	}

	i := g.rnd.IntN(len(g.snapshots))
	cur := g.snapshots[i]

	delta := g.cfg.DeltaMin + g.rnd.Float64()*(g.cfg.DeltaMax-g.cfg.DeltaMin)
	if g.rnd.IntN(2) == 0 {
		delta = -delta
	}

	next := model.OddsSnapshot{
		MatchID:   cur.MatchID,
		TeamAOdds: ClampOdds(cur.TeamAOdds+delta, g.cfg.Decimals, g.cfg.MinOdds, g.cfg.MaxOdds),
		TeamBOdds: ClampOdds(cur.TeamBOdds-delta, g.cfg.Decimals, g.cfg.MinOdds, g.cfg.MaxOdds),
		UpdatedAt: g.now(),
	}
	g.snapshots[i] = next
	return next, true
}

// ClampOdds rounds v to decimals places and limits it to [lo, hi].
func ClampOdds(v float64, decimals int, lo, hi float64) float64 {
	p := math.Pow(10, float64(decimals))
	rounded := math.Round(v*p) / p
	return math.Min(math.Max(rounded, lo), hi)
}

package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/odds-feed/internal/catalog"
	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/stream"
)

// User-facing board messages.
const (
	MessageInterrupted   = "odds updates interrupted, refresh to retry"
	MessageLoadFailed    = "failed to load data, please try again later"
	MessageDecodeFailed  = "failed to parse data, please try again later"
	MessageNoMatches     = "no matches scheduled"
	MessageUnexpected    = "unexpected error, please try again later"
	MessageShowingCached = "showing cached odds, refresh to retry"
)

const defaultStatusPoll = 500 * time.Millisecond

// Cache persists board rows between runs.
type Cache interface {
	LoadItems(ctx context.Context) ([]model.MatchOddsItem, error)
	ReplaceAll(ctx context.Context, items []model.MatchOddsItem) error
}

// Board is the consumer-side list of matches and their live odds.
type Board struct {
	service   *Service
	cache     Cache
	logger    *slog.Logger
	pollEvery time.Duration

	mu        sync.Mutex
	items     []model.MatchOddsItem
	index     map[int]int // match ID -> position in items
	message   string
	loading   bool
	status    stream.Status
	listeners []Listener
	gen       uint64 // bumped whenever in-flight work is abandoned
	cancel    context.CancelFunc

	work sync.WaitGroup
}

// NewBoard creates an empty board. cache may be nil.
func NewBoard(service *Service, cache Cache, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		service:   service,
		cache:     cache,
		logger:    logger.With("component", "board"),
		pollEvery: defaultStatusPoll,
		index:     make(map[int]int),
	}
}

// Subscribe registers l for every subsequent event.
func (b *Board) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Load abandons any in-flight work, fetches matches and opening odds
// concurrently, and starts streaming odds updates.
//
// When loading fails and the cache holds rows, the cached rows are shown
// without live updates. The returned error is the load failure either way.
func (b *Board) Load(ctx context.Context) error {
	b.abandon()

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.loading = true
	b.message = ""
	b.mu.Unlock()

	var (
		matches  []model.Match
		openings []model.OddsSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = b.service.LoadMatches(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		openings, err = b.service.LoadInitialOdds(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		b.loadFailed(ctx, gen, err)
		return err
	}

	items := model.BuildItems(matches, openings)

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return context.Canceled
	}
	b.setItemsLocked(items)
	b.loading = false
	b.message = ""

	// Start streaming before releasing the lock so a concurrent Stop sees
	// the stream it has to stop.
	streamCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	s := b.service.OddsUpdates()
	b.work.Add(1)
	go b.consume(streamCtx, gen, s)
	b.mu.Unlock()

	b.logger.Info("board loaded", "matches", len(matches), "odds", len(openings))
	b.publish(Event{Type: EventSnapshot, Items: copyItems(items)})

	if b.cache != nil {
		if err := b.cache.ReplaceAll(ctx, items); err != nil {
			b.logger.Warn("cache replace failed", "error", err)
		}
	}
	return nil
}

// Stop abandons in-flight work and stops the odds stream without touching
// the rows already shown.
func (b *Board) Stop() {
	b.abandon()

	b.mu.Lock()
	b.loading = false
	b.mu.Unlock()
}

// Run polls the stream status until ctx ends, publishing a state event on
// every change, then stops the board.
func (b *Board) Run(ctx context.Context) error {
	t := time.NewTicker(b.pollEvery)
	defer t.Stop()
	defer b.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			b.pollStatus()
		}
	}
}

// Items returns a copy of the rows in start-time order.
func (b *Board) Items() []model.MatchOddsItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyItems(b.items)
}

// Message returns the current user-facing message, or "".
func (b *Board) Message() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

// StreamStatus returns the status of the odds stream.
func (b *Board) StreamStatus() stream.Status {
	return b.service.StreamStatus()
}

// State returns a copy of the whole board.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Items:        copyItems(b.items),
		Message:      b.message,
		Loading:      b.loading,
		StreamStatus: b.service.StreamStatus(),
	}
}

// abandon cancels the consumer goroutine and stops the stream, then waits
// for the consumer to exit.
func (b *Board) abandon() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.gen++
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.service.StopOddsStream()
	b.work.Wait()
}

func (b *Board) consume(ctx context.Context, gen uint64, s *stream.Stream[model.OddsSnapshot]) {
	defer b.work.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-s.C():
			if !ok {
				b.streamEnded(gen)
				return
			}
			b.applyOdds(gen, snap)
		}
	}
}

func (b *Board) applyOdds(gen uint64, snap model.OddsSnapshot) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	i, ok := b.index[snap.MatchID]
	if ok {
		b.items[i] = b.items[i].WithOdds(snap)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("update for unknown match", "match_id", snap.MatchID)
		return
	}
	b.publish(Event{Type: EventOdds, Odds: &snap})
}

// streamEnded handles a stream that finished without the board asking.
func (b *Board) streamEnded(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.message != "" || len(b.items) == 0 {
		b.mu.Unlock()
		return
	}
	b.message = MessageInterrupted
	b.mu.Unlock()

	b.logger.Warn("odds stream ended")
	b.publish(Event{Type: EventMessage, Message: MessageInterrupted})
}

func (b *Board) loadFailed(ctx context.Context, gen uint64, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		b.mu.Lock()
		if gen == b.gen {
			b.loading = false
		}
		b.mu.Unlock()
		return
	}

	var cached []model.MatchOddsItem
	if b.cache != nil {
		items, cerr := b.cache.LoadItems(ctx)
		if cerr != nil {
			b.logger.Warn("cache load failed", "error", cerr)
		}
		cached = items
	}

	msg := messageFor(err)
	if len(cached) > 0 {
		msg = MessageShowingCached
	}

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.setItemsLocked(cached)
	b.loading = false
	b.message = msg
	b.mu.Unlock()

	b.logger.Error("board load failed", "error", err, "cached_rows", len(cached))
	b.publish(Event{Type: EventSnapshot, Items: copyItems(cached)})
	b.publish(Event{Type: EventMessage, Message: msg})
}

func (b *Board) pollStatus() {
	st := b.service.StreamStatus()

	b.mu.Lock()
	if st == b.status {
		b.mu.Unlock()
		return
	}
	prev := b.status
	b.status = st
	b.mu.Unlock()

	b.logger.Debug("stream status observed", "from", prev.String(), "to", st.String())
	b.publish(Event{Type: EventState, Status: st})
}

func (b *Board) setItemsLocked(items []model.MatchOddsItem) {
	b.items = items
	b.index = make(map[int]int, len(items))
	for i, item := range items {
		b.index[item.ID()] = i
	}
}

func (b *Board) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.Lock()
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// messageFor maps a load failure to the message shown to users.
func messageFor(err error) string {
	switch {
	case errors.Is(err, ErrNoMatches):
		return MessageNoMatches
	case errors.Is(err, catalog.ErrMissingResource):
		return MessageLoadFailed
	case errors.Is(err, catalog.ErrDecode):
		return MessageDecodeFailed
	default:
		return MessageUnexpected
	}
}

func copyItems(items []model.MatchOddsItem) []model.MatchOddsItem {
	if items == nil {
		return nil
	}
	return append([]model.MatchOddsItem(nil), items...)
}

package stream

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// Ticker is the public face of the simulated feed. It keeps at most one
// stream alive: requesting a new one closes the previous stream first.
type Ticker[T any] struct {
	cfg  Config
	opts []Option

	mu      sync.Mutex
	rnd     *rand.Rand // seeds each engine's own source
	current *Stream[T]
}

// NewTicker returns a Ticker whose engines use cfg and opts.
func NewTicker[T any](cfg Config, opts ...Option) *Ticker[T] {
	o := buildOptions(opts)
	return &Ticker[T]{
		cfg:  cfg,
		opts: opts,
		rnd:  o.rnd,
	}
}

// Stream starts a new engine polling source and returns its stream. Any
// earlier stream from this Ticker is closed before the new engine starts, so
// at most one engine ever pushes values.
func (t *Ticker[T]) Stream(interval time.Duration, source Source[T]) *Stream[T] {
	t.mu.Lock()
	prev := t.current
	opts := append(slices.Clone(t.opts), WithRand(rand.New(rand.NewPCG(t.rnd.Uint64(), t.rnd.Uint64()))))
	s := newStream(NewEngine(t.cfg, interval, source, opts...))
	t.current = s
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.start()
	return s
}

// Stop closes the current stream, if any. Safe to call repeatedly.
func (t *Ticker[T]) Stop() {
	t.mu.Lock()
	cur := t.current
	t.current = nil
	t.mu.Unlock()

	if cur != nil {
		cur.Close()
	}
}

// Status reports the current stream's status, or StatusUnknown when no
// stream is active.
func (t *Ticker[T]) Status() Status {
	cur := t.Current()
	if cur == nil {
		return StatusUnknown
	}
	return cur.Status()
}

// Current returns the active stream, or nil.
func (t *Ticker[T]) Current() *Stream[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

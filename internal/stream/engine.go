package stream

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// watchdogInterval bounds timeout detection resolution independently of
	// the configured heartbeat timing.
	watchdogInterval = 250 * time.Millisecond

	mailboxSize = 64
)

type eventKind int

const (
	eventTick eventKind = iota
	eventHeartbeat
	eventWatchdog
	eventBackoffElapsed
	eventHandshakeDone
	eventStats
)

// event is a unit of work for the engine goroutine. gen ties delayed
// connect/reconnect steps to the attempt that scheduled them.
type event struct {
	kind  eventKind
	gen   uint64
	reply chan<- Stats
}

// Engine is one simulated connection. A single goroutine owns all mutable
// connection state; loops and timers only post events to its mailbox.
//
// An Engine is started once and stopped once. It is never reused.
type Engine[T any] struct {
	cfg           Config
	interval      time.Duration
	source        Source[T]
	logger        *slog.Logger
	rnd           *rand.Rand
	now           func() time.Time
	id            uuid.UUID
	watchdogEvery time.Duration

	mailbox chan event
	quit    chan struct{} // closed by Stop
	done    chan struct{} // closed once loops are retired and the sink is finished
	loops   sync.WaitGroup

	status   atomic.Int32
	pushMu   sync.Mutex  // held across the last status check and Push, and by Stop
	claimed  atomic.Bool // set by whichever of Start/Stop runs first
	stopOnce sync.Once
	final    atomic.Pointer[Stats]

	// Owned by the run goroutine.
	sink          Sink[T]
	sinkClosed    bool
	attempts      int
	generation    uint64
	pending       *time.Timer
	limiter       *RateLimiter
	lastPing      time.Time
	lastPong      time.Time
	lastHeartbeat time.Time
	lastEmission  time.Time
	stats         Stats
}

// NewEngine builds an idle engine. interval is the minimum spacing between
// emissions requested by the caller, on top of the rate limit.
func NewEngine[T any](cfg Config, interval time.Duration, source Source[T], opts ...Option) *Engine[T] {
	o := buildOptions(opts)
	cfg = cfg.normalized()

	e := &Engine[T]{
		cfg:           cfg,
		interval:      nonNegative(interval),
		source:        source,
		rnd:           o.rnd,
		now:           o.now,
		id:            o.id,
		watchdogEvery: watchdogInterval,
		mailbox:       make(chan event, mailboxSize),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	e.logger = o.logger.With("component", "stream", "session", o.id.String())
	e.status.Store(int32(StatusIdle))
	return e
}

// ID returns the session ID.
func (e *Engine[T]) ID() uuid.UUID {
	return e.id
}

// Status returns the current status. Safe to call at any time, including
// after Stop.
func (e *Engine[T]) Status() Status {
	return Status(e.status.Load())
}

// Done is closed after Stop once every loop has exited and the sink has been
// finished.
func (e *Engine[T]) Done() <-chan struct{} {
	return e.done
}

// Start launches the connection and returns immediately. Values flow to sink
// until Stop. Starting an engine that was already stopped just finishes sink.
func (e *Engine[T]) Start(sink Sink[T]) {
	if !e.claimed.CompareAndSwap(false, true) {
		if e.Status() == StatusStopped {
			sink.Close()
		}
		return
	}

	e.sink = sink
	e.limiter = NewRateLimiter(e.cfg.MaxUpdatesPerSecond, e.now())

	e.loops.Add(3)
	go e.tickLoop()
	go e.heartbeatLoop()
	go e.watchdogLoop()

	go e.run()
}

// Stop marks the engine stopped immediately, then retires its loops and
// finishes the sink in the background. It is idempotent and safe from any
// goroutine except a Sink's Push. A push already in flight completes before
// Stop returns; none starts after.
func (e *Engine[T]) Stop() {
	e.stopOnce.Do(func() {
		e.pushMu.Lock()
		prev := Status(e.status.Swap(int32(StatusStopped)))
		e.pushMu.Unlock()
		close(e.quit)

		if e.claimed.CompareAndSwap(false, true) {
			// Never started: nothing to retire.
			e.final.Store(&Stats{})
			close(e.done)
		}

		e.logger.Info("stream stop requested", "from", prev.String())
	})
}

// Stats returns a snapshot of the engine counters.
func (e *Engine[T]) Stats() Stats {
	if s := e.final.Load(); s != nil {
		return *s
	}
	if !e.claimed.Load() {
		return Stats{}
	}

	reply := make(chan Stats, 1)
	select {
	case e.mailbox <- event{kind: eventStats, reply: reply}:
	case <-e.done:
		return *e.final.Load()
	}

	select {
	case s := <-reply:
		return s
	case <-e.done:
		return *e.final.Load()
	}
}

// run is the engine goroutine: the only place connection state changes.
func (e *Engine[T]) run() {
	defer e.finish()

	e.logger.Info("stream started",
		"interval", e.interval,
		"cadence", e.cfg.Cadence(),
		"max_updates_per_second", e.cfg.MaxUpdatesPerSecond,
	)

	e.beginConnecting(e.nextGeneration())

	for {
		select {
		case <-e.quit:
			return
		case ev := <-e.mailbox:
			e.handle(ev)
		}
	}
}

func (e *Engine[T]) handle(ev event) {
	if ev.kind == eventStats {
		ev.reply <- e.snapshot()
		return
	}
	if e.Status() == StatusStopped {
		return
	}

	switch ev.kind {
	case eventTick:
		e.tick()
	case eventHeartbeat:
		e.heartbeat()
	case eventWatchdog:
		e.watchdog()
	case eventBackoffElapsed:
		if ev.gen != e.generation || e.Status() != StatusReconnecting {
			return // superseded attempt
		}
		e.beginConnecting(ev.gen)
	case eventHandshakeDone:
		if ev.gen != e.generation || e.Status() != StatusConnecting {
			return
		}
		e.connected()
	}
}

// tick runs one emission opportunity.
func (e *Engine[T]) tick() {
	if e.Status() != StatusConnected || e.sinkClosed {
		return
	}

	now := e.now()
	if now.Sub(e.lastEmission) < e.interval {
		e.stats.SkippedInterval++
		return
	}
	if !e.limiter.allow(now) {
		e.stats.SkippedRateLimit++
		return
	}

	v, ok := e.source()
	if !ok {
		e.stats.EmptyPolls++
		return
	}
	if !e.push(v) {
		return
	}

	e.lastHeartbeat = now
	e.lastEmission = now
	e.limiter.record()
	e.stats.Emitted++
	e.stats.LastEmission = now
	e.logger.Debug("update emitted", "emitted", e.stats.Emitted)

	if roll(e.cfg.SpontaneousDropProbability, e.rnd) {
		e.stats.SpontaneousDrops++
		e.triggerReconnect("spontaneous drop")
	}
}

// push hands v to the sink unless the engine left connected while the source
// ran. Stop cannot slip in between the check and the push.
func (e *Engine[T]) push(v T) bool {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	if e.Status() != StatusConnected {
		return false
	}
	if !e.sink.Push(v) {
		e.sinkClosed = true
		return false
	}
	return true
}

// heartbeat simulates one ping/pong exchange. It never changes status; a
// lost pong is left for the watchdog to notice.
func (e *Engine[T]) heartbeat() {
	if e.Status() != StatusConnected {
		return
	}

	now := e.now()
	e.lastPing = now
	e.stats.Pings++
	e.logger.Debug("ping")

	if roll(e.cfg.HeartbeatFailureProbability, e.rnd) {
		e.stats.LostPongs++
		e.logger.Warn("pong lost", "last_pong", e.lastPong)
		return
	}

	e.lastPong = now
	e.lastHeartbeat = now
	e.logger.Debug("pong")
}

func (e *Engine[T]) watchdog() {
	if e.Status() != StatusConnected || e.lastPong.IsZero() {
		return
	}

	since := e.now().Sub(e.lastPong)
	if since > e.cfg.HeartbeatTimeout {
		e.stats.WatchdogTimeouts++
		e.logger.Warn("heartbeat timeout",
			"since_last_pong", since,
			"timeout", e.cfg.HeartbeatTimeout,
		)
		e.triggerReconnect("heartbeat timeout")
	}
}

// triggerReconnect moves a connected engine to reconnecting and schedules
// the next attempt after a backoff delay.
func (e *Engine[T]) triggerReconnect(reason string) {
	if e.Status() != StatusConnected {
		return
	}
	if !e.setStatus(StatusReconnecting) {
		return
	}

	e.attempts++
	delay := ReconnectDelay(e.cfg, e.attempts, e.rnd)
	e.stats.Reconnects++

	e.logger.Warn("connection dropped, scheduling reconnect",
		"reason", reason,
		"attempt", e.attempts,
		"delay", delay,
	)
	e.after(delay, event{kind: eventBackoffElapsed, gen: e.nextGeneration()})
}

// beginConnecting enters connecting and schedules the handshake for the
// attempt identified by gen.
func (e *Engine[T]) beginConnecting(gen uint64) {
	if !e.setStatus(StatusConnecting) {
		return
	}
	e.after(e.cfg.HandshakeDelay, event{kind: eventHandshakeDone, gen: gen})
}

// connected completes a handshake. Attempt count and emission window reset
// together.
func (e *Engine[T]) connected() {
	if !e.setStatus(StatusConnected) {
		return
	}

	now := e.now()
	e.pending = nil
	e.attempts = 0
	e.limiter.Reset(now)
	e.lastEmission = now
	e.lastHeartbeat = now
	if e.cfg.HeartbeatInterval > 0 {
		// Arm the watchdog from the moment the link comes up.
		e.lastPing = now
		e.lastPong = now
	} else {
		e.lastPing = time.Time{}
		e.lastPong = time.Time{}
	}
}

// nextGeneration invalidates any scheduled attempt and returns the token for
// the next one.
func (e *Engine[T]) nextGeneration() uint64 {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.generation++
	return e.generation
}

// after posts ev once d has elapsed.
func (e *Engine[T]) after(d time.Duration, ev event) {
	if e.pending != nil {
		e.pending.Stop()
	}
	e.pending = time.AfterFunc(d, func() { e.post(ev) })
}

// setStatus publishes next unless the engine has been stopped.
func (e *Engine[T]) setStatus(next Status) bool {
	for {
		cur := e.status.Load()
		if Status(cur) == StatusStopped {
			return false
		}
		if e.status.CompareAndSwap(cur, int32(next)) {
			if Status(cur) != next {
				e.logger.Info("stream status changed",
					"from", Status(cur).String(),
					"to", next.String(),
				)
			}
			return true
		}
	}
}

func (e *Engine[T]) snapshot() Stats {
	s := e.stats
	s.ReconnectAttempts = e.attempts
	return s
}

// finish runs on the engine goroutine after Stop.
func (e *Engine[T]) finish() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.loops.Wait()

	e.sinkClosed = true
	e.sink.Close()

	s := e.snapshot()
	e.final.Store(&s)

	e.logger.Info("stream stopped",
		"emitted", s.Emitted,
		"reconnects", s.Reconnects,
	)
	close(e.done)
}

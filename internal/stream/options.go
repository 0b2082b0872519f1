package stream

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Option configures an Engine (or every engine a Ticker creates).
type Option func(*options)

type options struct {
	logger *slog.Logger
	rnd    *rand.Rand
	now    func() time.Time
	id     uuid.UUID
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRand sets the random source used for pong loss, spontaneous drops and
// backoff jitter. The engine goroutine is its only user.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

// WithClock overrides the wall clock used for emission and heartbeat
// bookkeeping. Timers still run on real time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithID sets the session ID attached to log lines. A random one is used
// otherwise.
func WithID(id uuid.UUID) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.rnd == nil {
		o.rnd = newRand()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}
	return o
}

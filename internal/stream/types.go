package stream

import (
	"time"
)

// Status is the connection state reported by an engine.
type Status int32

const (
	// StatusUnknown is reported by a Ticker that has no active stream.
	StatusUnknown Status = iota
	StatusIdle
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name, so JSON payloads carry "connected"
// rather than an integer.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name. Unrecognized names become
// StatusUnknown.
func (s *Status) UnmarshalText(text []byte) error {
	*s = ParseStatus(string(text))
	return nil
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) Status {
	for st := StatusIdle; st <= StatusStopped; st++ {
		if st.String() == name {
			return st
		}
	}
	return StatusUnknown
}

// Source produces the next value to push. Returning false means no update is
// available on this tick. It is called from the engine goroutine and must not
// block indefinitely.
type Source[T any] func() (T, bool)

// Sink receives values from an engine. Push reports false once the sink no
// longer accepts values. Push must not block for long or call the engine's
// Stop. Close finishes the sink and may be called without any prior Push.
type Sink[T any] interface {
	Push(v T) bool
	Close()
}

// JitterRange is the inclusive range a random jitter is drawn from.
type JitterRange struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// Config controls engine timing and failure simulation. It is treated as
// immutable once an engine is built.
type Config struct {
	HandshakeDelay              time.Duration `yaml:"handshake_delay"`               // time spent connecting
	HeartbeatInterval           time.Duration `yaml:"heartbeat_interval"`            // 0 disables heartbeats
	HeartbeatTimeout            time.Duration `yaml:"heartbeat_timeout"`             // max age of last pong
	ReconnectDelay              time.Duration `yaml:"reconnect_delay"`               // multiplied by attempt count
	ReconnectJitter             JitterRange   `yaml:"reconnect_jitter"`              // added to each backoff
	HeartbeatFailureProbability float64       `yaml:"heartbeat_failure_probability"` // chance a pong is lost
	SpontaneousDropProbability  float64       `yaml:"spontaneous_drop_probability"`  // chance an emission drops the link
	MaxReconnectDelay           time.Duration `yaml:"max_reconnect_delay"`           // backoff cap
	MaxUpdatesPerSecond         int           `yaml:"max_updates_per_second"`        // emissions per rolling second
}

// DefaultConfig returns the production simulation profile.
func DefaultConfig() Config {
	return Config{
		HandshakeDelay:              350 * time.Millisecond,
		HeartbeatInterval:           5 * time.Second,
		HeartbeatTimeout:            30 * time.Second,
		ReconnectDelay:              1500 * time.Millisecond,
		ReconnectJitter:             JitterRange{Min: 0, Max: 1200 * time.Millisecond},
		HeartbeatFailureProbability: 0.01,
		SpontaneousDropProbability:  0.03,
		MaxReconnectDelay:           6 * time.Second,
		MaxUpdatesPerSecond:         10,
	}
}

// normalized clamps out-of-range values instead of rejecting them so an
// engine can always be built and always eventually connects.
func (c Config) normalized() Config {
	c.HandshakeDelay = nonNegative(c.HandshakeDelay)
	c.HeartbeatInterval = nonNegative(c.HeartbeatInterval)
	c.HeartbeatTimeout = nonNegative(c.HeartbeatTimeout)
	c.ReconnectDelay = nonNegative(c.ReconnectDelay)
	c.MaxReconnectDelay = nonNegative(c.MaxReconnectDelay)
	c.ReconnectJitter.Min = nonNegative(c.ReconnectJitter.Min)
	c.ReconnectJitter.Max = nonNegative(c.ReconnectJitter.Max)
	if c.ReconnectJitter.Min > c.ReconnectJitter.Max {
		c.ReconnectJitter.Min, c.ReconnectJitter.Max = c.ReconnectJitter.Max, c.ReconnectJitter.Min
	}
	c.HeartbeatFailureProbability = clampProbability(c.HeartbeatFailureProbability)
	c.SpontaneousDropProbability = clampProbability(c.SpontaneousDropProbability)
	if c.MaxUpdatesPerSecond <= 0 {
		c.MaxUpdatesPerSecond = 1
	}
	return c
}

// minCadence is the fastest the emission ticker runs. Higher rate limits are
// still honoured as a cap; they just cannot be reached.
const minCadence = time.Millisecond

// Cadence is the emission ticker period: one tick per allowed update, never
// shorter than minCadence.
func (c Config) Cadence() time.Duration {
	n := c.MaxUpdatesPerSecond
	if n <= 0 {
		n = 1
	}
	d := time.Second / time.Duration(n)
	if d < minCadence {
		d = minCadence
	}
	return d
}

// Stats counts what an engine has done since it started.
type Stats struct {
	Emitted           int64     `json:"emitted"`
	SkippedInterval   int64     `json:"skipped_interval"`
	SkippedRateLimit  int64     `json:"skipped_rate_limit"`
	EmptyPolls        int64     `json:"empty_polls"`
	Pings             int64     `json:"pings"`
	LostPongs         int64     `json:"lost_pongs"`
	WatchdogTimeouts  int64     `json:"watchdog_timeouts"`
	SpontaneousDrops  int64     `json:"spontaneous_drops"`
	Reconnects        int64     `json:"reconnects"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastEmission      time.Time `json:"last_emission"`
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func clampProbability(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

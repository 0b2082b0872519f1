package stream

import (
	"math/rand/v2"
	"time"
)

// ReconnectDelay computes the wait before reconnect attempt number attempts
// (1-based): reconnectDelay*attempts plus uniform jitter, capped at
// maxReconnectDelay.
func ReconnectDelay(cfg Config, attempts int, rnd *rand.Rand) time.Duration {
	cfg = cfg.normalized()
	if attempts < 0 {
		attempts = 0
	}

	// Past the cap already; skip the multiply so large counts cannot overflow.
	if cfg.ReconnectDelay > 0 && int64(attempts) > int64(cfg.MaxReconnectDelay/cfg.ReconnectDelay) {
		return cfg.MaxReconnectDelay
	}

	delay := cfg.ReconnectDelay*time.Duration(attempts) + jitter(cfg.ReconnectJitter, rnd)
	if delay > cfg.MaxReconnectDelay {
		delay = cfg.MaxReconnectDelay
	}
	return delay
}

// jitter draws uniformly from [r.Min, r.Max].
func jitter(r JitterRange, rnd *rand.Rand) time.Duration {
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + time.Duration(rnd.Int64N(int64(span)+1))
}

// roll returns true with probability p.
func roll(p float64, rnd *rand.Rand) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rnd.Float64() < p
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

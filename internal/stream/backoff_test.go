package stream

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestReconnectDelay_LinearWithoutJitter(t *testing.T) {
	cfg := Config{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: time.Minute,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := ReconnectDelay(cfg, tt.attempts, testRand()); got != tt.want {
			t.Errorf("ReconnectDelay(attempts=%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestReconnectDelay_CappedAndMonotonic(t *testing.T) {
	cfg := Config{
		ReconnectDelay:    1500 * time.Millisecond,
		MaxReconnectDelay: 6 * time.Second,
	}

	prev := time.Duration(0)
	for attempts := 1; attempts <= 20; attempts++ {
		got := ReconnectDelay(cfg, attempts, testRand())
		if got > cfg.MaxReconnectDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempts, got, cfg.MaxReconnectDelay)
		}
		if got < prev {
			t.Fatalf("attempt %d: delay %v shorter than previous %v", attempts, got, prev)
		}
		prev = got
	}
	if prev != cfg.MaxReconnectDelay {
		t.Errorf("delay after many attempts = %v, want cap %v", prev, cfg.MaxReconnectDelay)
	}
}

func TestReconnectDelay_JitterWithinRange(t *testing.T) {
	cfg := DefaultConfig()
	rnd := testRand()

	for i := 0; i < 1000; i++ {
		got := ReconnectDelay(cfg, 1, rnd)
		lo := cfg.ReconnectDelay + cfg.ReconnectJitter.Min
		hi := cfg.ReconnectDelay + cfg.ReconnectJitter.Max
		if hi > cfg.MaxReconnectDelay {
			hi = cfg.MaxReconnectDelay
		}
		if got < lo || got > hi {
			t.Fatalf("delay %v outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestReconnectDelay_HugeAttemptCount(t *testing.T) {
	cfg := DefaultConfig()
	if got := ReconnectDelay(cfg, math.MaxInt, testRand()); got != cfg.MaxReconnectDelay {
		t.Errorf("ReconnectDelay(MaxInt) = %v, want %v", got, cfg.MaxReconnectDelay)
	}
}

func TestReconnectDelay_ReversedJitterRange(t *testing.T) {
	cfg := Config{
		ReconnectDelay:    time.Second,
		ReconnectJitter:   JitterRange{Min: 200 * time.Millisecond, Max: 100 * time.Millisecond},
		MaxReconnectDelay: time.Minute,
	}
	rnd := testRand()
	for i := 0; i < 100; i++ {
		got := ReconnectDelay(cfg, 1, rnd)
		if got < 1100*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("delay %v outside [1.1s, 1.2s]", got)
		}
	}
}

func TestRoll_Bounds(t *testing.T) {
	rnd := testRand()
	for i := 0; i < 100; i++ {
		if roll(0, rnd) {
			t.Fatal("roll(0) returned true")
		}
		if !roll(1, rnd) {
			t.Fatal("roll(1) returned false")
		}
	}
}

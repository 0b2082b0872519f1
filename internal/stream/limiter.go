package stream

import "time"

// emissionWindow is the length of one rate-limit accounting period.
const emissionWindow = time.Second

// RateLimiter is a fixed-reset token bucket: at most capacity emissions per
// window, where the window restarts wholesale once it is a full second old.
// Bursts straddling a window boundary are accepted. Not safe for concurrent
// use; the engine goroutine owns it.
type RateLimiter struct {
	capacity    int
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter whose first window opens at now.
// Capacity values <= 0 are treated as 1.
func NewRateLimiter(capacity int, now time.Time) *RateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &RateLimiter{capacity: capacity, windowStart: now}
}

// TryConsume reports whether an emission is allowed at now and, if so,
// counts it.
func (l *RateLimiter) TryConsume(now time.Time) bool {
	if !l.allow(now) {
		return false
	}
	l.record()
	return true
}

// Reset opens a fresh, empty window at now.
func (l *RateLimiter) Reset(now time.Time) {
	l.windowStart = now
	l.count = 0
}

// Remaining returns how many emissions the current window still allows.
func (l *RateLimiter) Remaining() int {
	return l.capacity - l.count
}

// allow rolls the window if it has expired and checks the budget without
// spending it.
func (l *RateLimiter) allow(now time.Time) bool {
	if now.Sub(l.windowStart) >= emissionWindow {
		l.Reset(now)
		return true
	}
	return l.count < l.capacity
}

// record spends one unit of the current window.
func (l *RateLimiter) record() {
	l.count++
}

// Package buffer provides the unbounded FIFO that sits between a stream
// engine and its consumer. The producer never blocks on a slow reader; the
// ring doubles whenever it fills up.
package buffer

import (
	"sync"
)

// Growable is a closable FIFO queue safe for one writer and any number of
// readers. Push never blocks. Pop blocks until an item arrives or the queue
// is closed and drained.
type Growable[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read position
	count  int
	closed bool

	// Stats
	pushed    int64
	popped    int64
	discarded int64
	grows     int
}

// Stats is a point-in-time view of a Growable queue.
type Stats struct {
	Len       int
	Capacity  int
	Pushed    int64
	Popped    int64
	Discarded int64
	Grows     int
	Closed    bool
}

// NewGrowable creates a queue with the given initial capacity.
func NewGrowable[T any](initialCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Growable[T]{
		ring: make([]T, initialCapacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends an item. It returns false once the queue is closed.
func (b *Growable[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.count == len(b.ring) {
		b.grow()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.pushed++

	b.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is open and empty.
// It returns false when the queue is closed and nothing is left.
func (b *Growable[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.take(), true
}

// TryPop removes the oldest item without blocking.
func (b *Growable[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.take(), true
}

// Close marks the queue finished. Items already queued can still be popped.
// Calling Close more than once is a no-op.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Discard drops everything still queued and returns how many items were lost.
func (b *Growable[T]) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	var zero T
	for i := 0; i < n; i++ {
		b.ring[(b.head+i)%len(b.ring)] = zero
	}
	b.head = 0
	b.count = 0
	b.discarded += int64(n)
	return n
}

// Closed reports whether Close has been called.
func (b *Growable[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns queue statistics.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Len:       b.count,
		Capacity:  len(b.ring),
		Pushed:    b.pushed,
		Popped:    b.popped,
		Discarded: b.discarded,
		Grows:     b.grows,
		Closed:    b.closed,
	}
}

// take pops the head item. Must be called with lock held and count > 0.
func (b *Growable[T]) take() T {
	item := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero // release reference for GC
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.popped++
	return item
}

// grow doubles the ring, unwrapping queued items to the front.
// Must be called with lock held.
func (b *Growable[T]) grow() {
	next := make([]T, len(b.ring)*2)
	n := copy(next, b.ring[b.head:])
	copy(next[n:], b.ring[:b.head])

	b.ring = next
	b.head = 0
	b.grows++
}

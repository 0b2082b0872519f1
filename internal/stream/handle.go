package stream

import (
	"iter"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/odds-feed/internal/buffer"
)

// initialQueueCapacity is the starting ring size of a stream's queue. It
// grows on demand, so the engine never blocks on a slow consumer.
const initialQueueCapacity = 16

// Stream is the consumer side of one engine: an ordered, finite sequence of
// values that ends when the stream is closed or replaced.
type Stream[T any] struct {
	engine *Engine[T]
	queue  *buffer.Growable[T]
	out    chan T

	closed    chan struct{}
	closeOnce sync.Once
}

func newStream[T any](engine *Engine[T]) *Stream[T] {
	return &Stream[T]{
		engine: engine,
		queue:  buffer.NewGrowable[T](initialQueueCapacity),
		out:    make(chan T),
		closed: make(chan struct{}),
	}
}

func (s *Stream[T]) start() {
	go s.pump()
	s.engine.Start(s.queue)
}

// pump moves values from the queue to the consumer channel, dropping
// anything still queued once the stream is closed.
func (s *Stream[T]) pump() {
	defer close(s.out)

	for {
		v, ok := s.queue.Pop()
		if !ok {
			return
		}

		select {
		case <-s.closed:
			return
		default:
		}

		select {
		case s.out <- v:
		case <-s.closed:
			return
		}
	}
}

// C returns the value channel. It is closed once the stream has ended and
// every delivered value has been received.
func (s *Stream[T]) C() <-chan T {
	return s.out
}

// All ranges over the stream's values. Breaking out of the loop closes the
// stream.
func (s *Stream[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer s.Close()
		for v := range s.out {
			if !yield(v) {
				return
			}
		}
	}
}

// Close stops the underlying engine and discards undelivered values. It is
// idempotent and returns without waiting for the engine to retire; see Done.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.engine.Stop()
		s.queue.Close()
		s.queue.Discard()
	})
}

// Done is closed once the engine behind this stream has fully stopped.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.engine.Done()
}

// Status returns the engine's connection status.
func (s *Stream[T]) Status() Status {
	return s.engine.Status()
}

// Stats returns the engine's counters.
func (s *Stream[T]) Stats() Stats {
	return s.engine.Stats()
}

// Pending returns how many values are queued but not yet received.
func (s *Stream[T]) Pending() int {
	return s.queue.Len()
}

// ID returns the engine's session ID.
func (s *Stream[T]) ID() uuid.UUID {
	return s.engine.ID()
}

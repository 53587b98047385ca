// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import "sync"

// Ring wraps a buffered channel so producers never block: when the buffer is
// full the oldest element is discarded. Consumers range over C().
type Ring[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed bool
	onDrop func()
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// Sending after Close is a no-op and reports false.
func (r *Ring[T]) Send(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	for {
		select {
		case r.ch <- v:
			return true
		default:
		}
		select {
		case <-r.ch:
			if r.onDrop != nil {
				r.onDrop()
			}
		default:
		}
	}
}

// OnDrop sets fn to run, under the ring lock, each time an element is discarded.
func (r *Ring[T]) OnDrop(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDrop = fn
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Close closes the receive side. Safe to call more than once.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

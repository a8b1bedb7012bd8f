// Package ring implements the bounded single-producer/single-consumer queue
// that hands decoded messages to the dispatch worker.
package ring

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

// Ring is a fixed-capacity SPSC FIFO. At most one goroutine may be in Offer
// and at most one in Poll at any time; callers with several producers must
// serialize them. The capacity never changes.
type Ring[T any] struct {
	_    cpu.CacheLinePad
	head atomic.Uint64 // next slot to poll, written by the consumer
	_    cpu.CacheLinePad
	tail atomic.Uint64 // next slot to fill, written by the producer
	_    cpu.CacheLinePad

	mask  uint64
	slots []T
}

// New allocates a ring. capacity must be a power of two.
func New[T any](capacity int) (*Ring[T], error) {
	if !IsPowerOfTwo(capacity) {
		return nil, errspkg.ErrInvalidCapacity
	}
	return &Ring[T]{
		mask:  uint64(capacity - 1),
		slots: make([]T, capacity),
	}, nil
}

// IsPowerOfTwo reports whether n is a usable ring capacity.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Offer enqueues v. It returns false without enqueuing when the ring is full.
func (r *Ring[T]) Offer(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		return false
	}
	r.slots[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Poll dequeues the oldest entry. ok is false when the ring is empty.
func (r *Ring[T]) Poll() (v T, ok bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return v, false
	}
	idx := head & r.mask
	v = r.slots[idx]
	var zero T
	r.slots[idx] = zero
	r.head.Store(head + 1)
	return v, true
}

// Len reports the number of queued entries. It is a snapshot when called
// from a goroutine other than the producer or consumer.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

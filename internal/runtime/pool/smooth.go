package pool

import (
	"sync"

	"github.com/drblury/reactorflow/internal/runtime/idle"
)

// Smooth double-buffers its backing store. Releases go to the write store and
// acquires drain the read store. Growth installs a larger write store without
// copying; the read store is switched over only once it is empty, so
// acquirers are never held up by a resize.
type Smooth[T any] struct {
	base[T]

	// mu is held shared for every push and pop; the exclusive side only
	// guards pointer swaps.
	mu    sync.RWMutex
	read  *store[T]
	write *store[T]
}

// NewSmooth creates and prefills a double-buffered pool.
func NewSmooth[T any](factory Factory[T], cfg Config) (*Smooth[T], error) {
	s := &Smooth[T]{}
	if err := s.init(factory, cfg); err != nil {
		return nil, err
	}
	st := newStore[T](s.min)
	s.read, s.write = st, st
	if err := s.prefill(st); err != nil {
		return nil, err
	}
	return s, nil
}

// Acquire returns a released instance, allocates one below the ceiling, or
// waits until another goroutine releases one.
func (s *Smooth[T]) Acquire() (T, error) {
	var wait idle.Strategy
	for {
		s.mu.RLock()
		rd, wr := s.read, s.write
		v, ok := rd.pop()
		s.mu.RUnlock()
		if ok {
			return v, nil
		}

		if rd != wr {
			s.advance(rd)
			continue
		}

		v, ok, err := s.allocate()
		if ok || err != nil {
			return v, err
		}

		if wait == nil {
			wait = s.newIdle()
		}
		wait.Idle()
	}
}

// advance points reads at the write store once the exhausted store rd is
// still current and empty.
func (s *Smooth[T]) advance(rd *store[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read == rd && rd.len() == 0 {
		s.read = s.write
	}
}

// Release stores v in the write store, installing a larger one when full.
func (s *Smooth[T]) Release(v T) {
	s.mu.RLock()
	ok := s.write.push(v)
	s.mu.RUnlock()
	if ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.write.push(v) {
		return
	}
	if int64(s.write.capacity()) >= s.max {
		return
	}
	next := newStore[T](nextCapacity(s.write.capacity(), s.max))
	if s.read != s.write {
		// an earlier growth is still being drained; fold the intermediate
		// store into the new one so the read side only ever trails by one
		for {
			old, ok := s.write.pop()
			if !ok {
				break
			}
			next.push(old)
		}
	}
	next.push(v)
	s.write = next
}

func (s *Smooth[T]) Available() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.read.len()
	if s.read != s.write {
		n += s.write.len()
	}
	return n
}

func (s *Smooth[T]) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.write.capacity()
}

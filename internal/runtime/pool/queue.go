package pool

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// store is a bounded MPMC queue of released instances. Each slot carries a
// sequence number so that a cursor CAS claims a slot for exactly one caller.
type store[T any] struct {
	_     cpu.CacheLinePad
	read  atomic.Uint64
	_     cpu.CacheLinePad
	write atomic.Uint64
	_     cpu.CacheLinePad

	mask  uint64
	slots []slot[T]
}

func newStore[T any](capacity int) *store[T] {
	s := &store[T]{
		mask:  uint64(capacity - 1),
		slots: make([]slot[T], capacity),
	}
	for i := range s.slots {
		s.slots[i].seq.Store(uint64(i))
	}
	return s
}

func (s *store[T]) capacity() int {
	return len(s.slots)
}

func (s *store[T]) push(v T) bool {
	for {
		pos := s.write.Load()
		sl := &s.slots[pos&s.mask]
		dif := int64(sl.seq.Load()) - int64(pos)
		switch {
		case dif == 0:
			if s.write.CompareAndSwap(pos, pos+1) {
				sl.val = v
				sl.seq.Store(pos + 1)
				return true
			}
		case dif < 0:
			return false
		}
	}
}

func (s *store[T]) pop() (T, bool) {
	for {
		pos := s.read.Load()
		sl := &s.slots[pos&s.mask]
		dif := int64(sl.seq.Load()) - int64(pos+1)
		switch {
		case dif == 0:
			if s.read.CompareAndSwap(pos, pos+1) {
				v := sl.val
				var zero T
				sl.val = zero
				sl.seq.Store(pos + s.mask + 1)
				return v, true
			}
		case dif < 0:
			var zero T
			return zero, false
		}
	}
}

func (s *store[T]) len() int {
	read := s.read.Load()
	write := s.write.Load()
	if write < read {
		return 0
	}
	return int(write - read)
}

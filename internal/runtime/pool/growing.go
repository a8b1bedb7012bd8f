package pool

import (
	"sync"

	"github.com/drblury/reactorflow/internal/runtime/idle"
)

// Growing keeps all released instances in one store. When a release finds the
// store full it is replaced by a store of twice the size under an exclusive
// lock; every other operation only takes the shared lock and claims slots
// with atomic cursor arithmetic.
type Growing[T any] struct {
	base[T]

	mu sync.RWMutex
	st *store[T]
}

// NewGrowing creates and prefills a growing pool.
func NewGrowing[T any](factory Factory[T], cfg Config) (*Growing[T], error) {
	g := &Growing[T]{}
	if err := g.init(factory, cfg); err != nil {
		return nil, err
	}
	g.st = newStore[T](g.min)
	if err := g.prefill(g.st); err != nil {
		return nil, err
	}
	return g, nil
}

// Acquire returns a released instance, allocates one below the ceiling, or
// waits until another goroutine releases one.
func (g *Growing[T]) Acquire() (T, error) {
	var wait idle.Strategy
	for {
		g.mu.RLock()
		v, ok := g.st.pop()
		g.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, ok, err := g.allocate()
		if ok || err != nil {
			return v, err
		}

		if wait == nil {
			wait = g.newIdle()
		}
		wait.Idle()
	}
}

// Release stores v for a later Acquire, growing the store when it is full.
func (g *Growing[T]) Release(v T) {
	g.mu.RLock()
	ok := g.st.push(v)
	g.mu.RUnlock()
	if ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.st.push(v) {
		return
	}
	if int64(g.st.capacity()) >= g.max {
		// more releases than acquisitions; the instance is dropped
		return
	}
	next := newStore[T](nextCapacity(g.st.capacity(), g.max))
	for {
		old, ok := g.st.pop()
		if !ok {
			break
		}
		next.push(old)
	}
	next.push(v)
	g.st = next
}

func (g *Growing[T]) Available() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.len()
}

func (g *Growing[T]) Capacity() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.capacity()
}

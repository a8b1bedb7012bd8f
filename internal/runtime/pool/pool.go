// Package pool provides bounded, concurrent pools of reusable instances.
//
// A pool is prefilled with 2^MinExp instances and may allocate up to 2^MaxExp
// live instances. Once the ceiling is reached Acquire waits, using the
// configured idle strategy, until another goroutine releases an instance.
// There is no timeout.
//
// Releasing an instance that was not acquired from the same pool, or releasing
// one twice, is undefined and not detected.
package pool

import (
	"fmt"
	"strings"
	"sync/atomic"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/idle"
)

// MaxExponent bounds the largest pool that can be configured.
const MaxExponent = 30

// Strategy selects how a pool grows its backing store.
type Strategy string

const (
	// StrategyGrowing copies into a doubled store under a short exclusive section.
	StrategyGrowing Strategy = "growing"
	// StrategySmooth allocates a larger write store and keeps serving acquires
	// from the old one until it is exhausted.
	StrategySmooth Strategy = "smooth"
)

// Pool is the contract shared by every growth strategy.
type Pool[T any] interface {
	Acquire() (T, error)
	Release(v T)
	// Live is the number of instances ever allocated by the pool.
	Live() int
	// Available is the number of released instances ready for Acquire.
	Available() int
	// Capacity is the size of the store receiving releases.
	Capacity() int
}

// Factory allocates a new instance.
type Factory[T any] func() (T, error)

// Config sizes a pool.
type Config struct {
	MinExp int
	MaxExp int
	// Idle produces the wait strategy used while the pool is at its ceiling.
	// Defaults to yielding.
	Idle idle.Factory
}

func (c Config) validate() error {
	if c.MinExp < 0 || c.MaxExp < 0 {
		return fmt.Errorf("%w: exponents must not be negative (min=%d max=%d)", errspkg.ErrInvalidPoolSize, c.MinExp, c.MaxExp)
	}
	if c.MinExp > c.MaxExp {
		return fmt.Errorf("%w: min exponent %d exceeds max exponent %d", errspkg.ErrInvalidPoolSize, c.MinExp, c.MaxExp)
	}
	if c.MaxExp > MaxExponent {
		return fmt.Errorf("%w: max exponent %d exceeds %d", errspkg.ErrInvalidPoolSize, c.MaxExp, MaxExponent)
	}
	return nil
}

// ParseStrategy resolves a configured strategy name. Empty selects growing.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyGrowing:
		return StrategyGrowing, nil
	case StrategySmooth:
		return StrategySmooth, nil
	default:
		return "", fmt.Errorf("%w: unknown pool strategy %q", errspkg.ErrConfiguration, name)
	}
}

// New builds a pool using the given growth strategy.
func New[T any](strategy Strategy, factory Factory[T], cfg Config) (Pool[T], error) {
	switch strategy {
	case "", StrategyGrowing:
		return NewGrowing(factory, cfg)
	case StrategySmooth:
		return NewSmooth(factory, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown pool strategy %q", errspkg.ErrConfiguration, strategy)
	}
}

// base holds the live-count bookkeeping shared by both strategies.
type base[T any] struct {
	factory Factory[T]
	min     int
	max     int64
	live    atomic.Int64
	newIdle idle.Factory
}

func (b *base[T]) init(factory Factory[T], cfg Config) error {
	if factory == nil {
		return errspkg.ErrFactoryRequired
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	b.factory = factory
	b.min = 1 << cfg.MinExp
	b.max = int64(1) << cfg.MaxExp
	b.newIdle = cfg.Idle
	if b.newIdle == nil {
		b.newIdle = idle.YieldFactory
	}
	return nil
}

// prefill allocates the initial instances into st.
func (b *base[T]) prefill(st *store[T]) error {
	for i := 0; i < b.min; i++ {
		v, err := b.factory()
		if err != nil {
			return fmt.Errorf("pool: prefill: %w", err)
		}
		st.push(v)
		b.live.Add(1)
	}
	return nil
}

// allocate creates a new instance when the live count is below the ceiling.
// ok is false when the ceiling has been reached.
func (b *base[T]) allocate() (v T, ok bool, err error) {
	for {
		n := b.live.Load()
		if n >= b.max {
			return v, false, nil
		}
		if b.live.CompareAndSwap(n, n+1) {
			break
		}
	}
	v, err = b.factory()
	if err != nil {
		b.live.Add(-1)
		var zero T
		return zero, false, fmt.Errorf("pool: factory: %w", err)
	}
	return v, true, nil
}

func (b *base[T]) Live() int {
	return int(b.live.Load())
}

func nextCapacity(current int, max int64) int {
	next := int64(current) * 2
	if next > max {
		next = max
	}
	return int(next)
}

// Package messagepool routes checkout and release of reusable messages to the
// pool registered for their type id.
package messagepool

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/idle"
	"github.com/drblury/reactorflow/internal/runtime/pool"
)

// Message is a reusable value identified on the wire by a stable type id.
// Reset must return every field to its default while keeping buffers that
// can be reused.
type Message interface {
	TypeID() int32
	Reset()
}

// Factory allocates a fresh message for a pool.
type Factory func() Message

// Stats is a point-in-time view of one pool.
type Stats struct {
	TypeID    int32  `json:"type_id"`
	Name      string `json:"name"`
	Live      int    `json:"live"`
	Available int    `json:"available"`
	Capacity  int    `json:"capacity"`
	Max       int    `json:"max"`
}

type entry struct {
	name string
	max  int
	pool pool.Pool[Message]
}

// Registry owns one pool per registered message type.
type Registry struct {
	pools    *xsync.MapOf[int32, *entry]
	strategy pool.Strategy
	idle     idle.Factory
}

// Option customises a Registry.
type Option func(*Registry)

// WithStrategy selects the growth strategy of pools created by the registry.
func WithStrategy(s pool.Strategy) Option {
	return func(r *Registry) { r.strategy = s }
}

// WithIdle sets the wait strategy used while a pool is at its ceiling.
func WithIdle(f idle.Factory) Option {
	return func(r *Registry) { r.idle = f }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		pools:    xsync.NewMapOf[int32, *entry](),
		strategy: pool.StrategyGrowing,
		idle:     idle.YieldFactory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the pool for typeID sized 2^minExp..2^maxExp. Registering
// a type id again is a no-op.
func (r *Registry) Register(typeID int32, name string, factory Factory, minExp, maxExp int) error {
	if _, ok := r.pools.Load(typeID); ok {
		return nil
	}
	if factory == nil {
		return errspkg.ErrFactoryRequired
	}

	p, err := pool.New(r.strategy, func() (Message, error) {
		m := factory()
		if m == nil {
			return nil, fmt.Errorf("%w: factory for type %d returned nil", errspkg.ErrConfiguration, typeID)
		}
		return m, nil
	}, pool.Config{MinExp: minExp, MaxExp: maxExp, Idle: r.idle})
	if err != nil {
		return fmt.Errorf("register type %d: %w", typeID, err)
	}

	r.pools.LoadOrStore(typeID, &entry{name: name, max: 1 << maxExp, pool: p})
	return nil
}

// Registered reports whether typeID has a pool.
func (r *Registry) Registered(typeID int32) bool {
	_, ok := r.pools.Load(typeID)
	return ok
}

// Checkout hands out an instance of typeID. Unregistered types fail with a
// configuration error; they are never registered implicitly.
func (r *Registry) Checkout(typeID int32) (Message, error) {
	e, ok := r.pools.Load(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: type %d", errspkg.ErrTypeNotRegistered, typeID)
	}
	return e.pool.Acquire()
}

// Release resets msg and returns it to the pool of its type.
func (r *Registry) Release(msg Message) error {
	if msg == nil {
		return nil
	}
	e, ok := r.pools.Load(msg.TypeID())
	if !ok {
		return fmt.Errorf("%w: type %d", errspkg.ErrTypeNotRegistered, msg.TypeID())
	}
	msg.Reset()
	e.pool.Release(msg)
	return nil
}

// Stats returns a snapshot of the pool for typeID.
func (r *Registry) Stats(typeID int32) (Stats, bool) {
	e, ok := r.pools.Load(typeID)
	if !ok {
		return Stats{}, false
	}
	return e.stats(typeID), true
}

// All returns a snapshot of every pool ordered by type id.
func (r *Registry) All() []Stats {
	out := make([]Stats, 0, r.pools.Size())
	r.pools.Range(func(typeID int32, e *entry) bool {
		out = append(out, e.stats(typeID))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

func (e *entry) stats(typeID int32) Stats {
	return Stats{
		TypeID:    typeID,
		Name:      e.name,
		Live:      e.pool.Live(),
		Available: e.pool.Available(),
		Capacity:  e.pool.Capacity(),
		Max:       e.max,
	}
}

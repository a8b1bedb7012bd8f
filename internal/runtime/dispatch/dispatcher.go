// Package dispatch delivers decoded messages to their registered handlers and
// returns every message to its pool exactly once.
//
// In Sync mode Accept runs the handlers on the calling goroutine. In Queued
// mode Accept hands the message to a single worker through a bounded SPSC
// ring; when the ring is full Accept waits, which is the pipeline's only
// backpressure point. Accept may be called from any number of goroutines:
// queued producers are serialized so the ring only ever sees one. Messages
// still queued when Stop returns are released without being delivered.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/idle"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	"github.com/drblury/reactorflow/internal/runtime/ring"
)

// Handler processes one message. The message must not be retained after the
// handler returns; it goes back to its pool immediately afterwards.
type Handler func(msg messagepool.Message) error

// Releaser takes back messages once all handlers have run.
type Releaser interface {
	Release(msg messagepool.Message) error
}

// Observer is notified about delivery outcomes. Implementations must be
// cheap and safe for concurrent use.
type Observer interface {
	Dispatched(typeID int32)
	Unhandled(typeID int32)
	HandlerFailed(typeID int32)
}

// Mode selects where handlers run.
type Mode int

const (
	Sync Mode = iota
	Queued
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Queued:
		return "queued"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode resolves a configured mode name. Empty selects Sync.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sync":
		return Sync, nil
	case "queued":
		return Queued, nil
	default:
		return Sync, fmt.Errorf("%w: unknown dispatch mode %q", errspkg.ErrConfiguration, name)
	}
}

// State is the dispatcher lifecycle position.
type State int32

const (
	Created State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config tunes a Dispatcher.
type Config struct {
	Mode Mode
	// Capacity is the ring size in Queued mode; a power of two.
	Capacity int
	// OfferIdle is used by Accept while the ring is full.
	OfferIdle idle.Factory
	// WorkerIdle is used by the worker while the ring is empty.
	WorkerIdle idle.Factory
	// Manual leaves polling to the caller: Start does not launch a worker
	// and the host must call DoWork from a single goroutine.
	Manual bool
	// CPUs pins the worker's OS thread when not empty (linux only).
	CPUs []int
	// OnError receives failures of queued deliveries, which have no caller
	// to return to.
	OnError func(typeID int32, err error)
	// Observer receives delivery outcomes.
	Observer Observer
}

// DefaultCapacity is used when Config.Capacity is zero.
const DefaultCapacity = 1024

// Dispatcher routes messages to handlers registered per type id.
type Dispatcher struct {
	cfg      Config
	releaser Releaser
	observer Observer

	mu       sync.Mutex
	handlers map[int32][]Handler
	sealed   bool

	state atomic.Int32
	ring  *ring.Ring[messagepool.Message]
	done  chan struct{}

	// offerMu makes the ring's producer side single-threaded.
	offerMu sync.Mutex
}

// New creates a dispatcher in the Created state.
func New(releaser Releaser, cfg Config) (*Dispatcher, error) {
	if releaser == nil {
		return nil, fmt.Errorf("%w: releaser is required", errspkg.ErrConfiguration)
	}
	if cfg.OfferIdle == nil {
		cfg.OfferIdle = idle.YieldFactory
	}
	if cfg.WorkerIdle == nil {
		cfg.WorkerIdle = idle.BackoffFactory(idle.DefaultBackoffConfig())
	}

	d := &Dispatcher{
		cfg:      cfg,
		releaser: releaser,
		observer: cfg.Observer,
		handlers: make(map[int32][]Handler),
	}
	if d.observer == nil {
		d.observer = noopObserver{}
	}

	switch cfg.Mode {
	case Sync:
	case Queued:
		capacity := cfg.Capacity
		if capacity == 0 {
			capacity = DefaultCapacity
		}
		r, err := ring.New[messagepool.Message](capacity)
		if err != nil {
			return nil, err
		}
		d.ring = r
		d.cfg.Capacity = capacity
	default:
		return nil, fmt.Errorf("%w: unknown dispatch mode %d", errspkg.ErrConfiguration, cfg.Mode)
	}
	return d, nil
}

// Register appends h to the handlers of typeID. Handlers run in registration
// order. Registration fails once the dispatcher is sealed.
func (d *Dispatcher) Register(typeID int32, h Handler) error {
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return fmt.Errorf("%w: cannot register handler for type %d", errspkg.ErrSealed, typeID)
	}
	d.handlers[typeID] = append(d.handlers[typeID], h)
	return nil
}

// Seal freezes the handler table. Start seals implicitly.
func (d *Dispatcher) Seal() {
	d.mu.Lock()
	d.sealed = true
	d.mu.Unlock()
}

// Start seals the dispatcher and moves it to Running. In Queued mode it also
// launches the worker unless Manual is set.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if State(d.state.Load()) != Created {
		return fmt.Errorf("%w: dispatcher already %s", errspkg.ErrConfiguration, State(d.state.Load()))
	}
	d.sealed = true
	d.state.Store(int32(Running))

	if d.ring != nil && !d.cfg.Manual {
		d.done = make(chan struct{})
		go d.run()
	}
	return nil
}

// Stop signals the worker to finish and waits for it. Queued messages are
// delivered on a best-effort basis only; whatever the worker left behind is
// released to its pool undelivered. In Manual mode the ring stays with the
// caller.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.CompareAndSwap(int32(Running), int32(Draining)) {
		d.state.CompareAndSwap(int32(Created), int32(Stopped))
		return
	}
	if d.done != nil {
		<-d.done
		d.discard()
	}
	d.state.Store(int32(Stopped))
}

// discard releases every queued message. It runs once the worker is gone and
// holds offerMu, so later producers see Draining and reject.
func (d *Dispatcher) discard() {
	d.offerMu.Lock()
	defer d.offerMu.Unlock()
	for {
		msg, ok := d.ring.Poll()
		if !ok {
			return
		}
		typeID := msg.TypeID()
		if err := d.releaser.Release(msg); err != nil && d.cfg.OnError != nil {
			d.cfg.OnError(typeID, err)
		}
	}
}

// State reports the lifecycle position.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Mode reports the scheduling mode.
func (d *Dispatcher) Mode() Mode {
	return d.cfg.Mode
}

// Accept delivers msg. Ownership passes to the dispatcher: msg is released to
// its pool on every path, including handler errors and panics. A type with
// no handlers is released first and then reported as unhandled.
func (d *Dispatcher) Accept(msg messagepool.Message) error {
	if State(d.state.Load()) != Running {
		return d.reject(msg)
	}
	if d.ring == nil {
		return d.deliver(msg)
	}

	d.offerMu.Lock()
	defer d.offerMu.Unlock()
	if State(d.state.Load()) != Running {
		return d.reject(msg)
	}
	if d.ring.Offer(msg) {
		return nil
	}

	wait := d.cfg.OfferIdle()
	for !d.ring.Offer(msg) {
		if State(d.state.Load()) != Running {
			return d.reject(msg)
		}
		wait.Idle()
	}
	return nil
}

func (d *Dispatcher) reject(msg messagepool.Message) error {
	if err := d.releaser.Release(msg); err != nil {
		return errors.Join(errspkg.ErrNotRunning, err)
	}
	return errspkg.ErrNotRunning
}

// DoWork delivers at most one queued message and returns the number
// delivered. Zero means there was nothing to do. Only one goroutine may call
// it, and only in Manual mode while a worker is not running.
func (d *Dispatcher) DoWork() int {
	if d.ring == nil {
		return 0
	}
	msg, ok := d.ring.Poll()
	if !ok {
		return 0
	}
	typeID := msg.TypeID()
	if err := d.deliver(msg); err != nil && d.cfg.OnError != nil {
		d.cfg.OnError(typeID, err)
	}
	return 1
}

// Pending is the number of queued messages.
func (d *Dispatcher) Pending() int {
	if d.ring == nil {
		return 0
	}
	return d.ring.Len()
}

// Capacity is the ring size, zero in Sync mode.
func (d *Dispatcher) Capacity() int {
	if d.ring == nil {
		return 0
	}
	return d.ring.Cap()
}

// HandlerCounts reports how many handlers each type id has.
func (d *Dispatcher) HandlerCounts() map[int32]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int32]int, len(d.handlers))
	for id, hs := range d.handlers {
		out[id] = len(hs)
	}
	return out
}

// deliver runs every handler of msg's type in order, then releases msg.
func (d *Dispatcher) deliver(msg messagepool.Message) (err error) {
	typeID := msg.TypeID()
	defer func() {
		if rerr := d.releaser.Release(msg); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	hs := d.handlers[typeID]
	if len(hs) == 0 {
		d.observer.Unhandled(typeID)
		return fmt.Errorf("%w: %d", errspkg.ErrUnhandledMessageType, typeID)
	}

	for _, h := range hs {
		if herr := invoke(typeID, h, msg); herr != nil {
			d.observer.HandlerFailed(typeID)
			err = errors.Join(err, herr)
		}
	}
	d.observer.Dispatched(typeID)
	return err
}

func invoke(typeID int32, h Handler, msg messagepool.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.HandlerPanicError{TypeID: typeID, Value: r}
		}
	}()
	return h(msg)
}

func (d *Dispatcher) run() {
	defer close(d.done)

	if len(d.cfg.CPUs) > 0 {
		unpin := lockToCPUs(d.cfg.CPUs, d.cfg.OnError)
		defer unpin()
	}

	wait := d.cfg.WorkerIdle()
	for State(d.state.Load()) == Running {
		if d.DoWork() > 0 {
			wait.Reset()
			continue
		}
		wait.Idle()
	}

	// best effort: whatever is already queued
	for n := d.ring.Len(); n > 0 && d.DoWork() > 0; n-- {
	}
}

type noopObserver struct{}

func (noopObserver) Dispatched(int32)    {}
func (noopObserver) Unhandled(int32)     {}
func (noopObserver) HandlerFailed(int32) {}

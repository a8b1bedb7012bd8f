// Package idle provides the wait strategies used while a pool is exhausted,
// a ring buffer is full or a worker has nothing to do.
package idle

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Strategy is called repeatedly by a goroutine that made no progress. Reset is
// called once progress resumes. Implementations are not safe for concurrent
// use; every waiter owns its own instance.
type Strategy interface {
	Idle()
	Reset()
}

// Factory creates a fresh Strategy for one waiter.
type Factory func() Strategy

// Names of the built-in strategies as accepted by Parse.
const (
	NameSpin    = "spin"
	NameYield   = "yield"
	NameSleep   = "sleep"
	NameBackoff = "backoff"
)

// Spin busy-loops without giving up the processor.
type Spin struct{}

func (Spin) Idle()  {}
func (Spin) Reset() {}

// Yield hands the processor to other goroutines.
type Yield struct{}

func (Yield) Idle()  { runtime.Gosched() }
func (Yield) Reset() {}

// Sleep parks the goroutine for a fixed duration.
type Sleep struct {
	Duration time.Duration
}

func (s Sleep) Idle() {
	time.Sleep(s.Duration)
}

func (Sleep) Reset() {}

// BackoffConfig tunes the hybrid strategy.
type BackoffConfig struct {
	Spins    int
	Yields   int
	MinSleep time.Duration
	MaxSleep time.Duration
}

// DefaultBackoffConfig mirrors the usual spin, yield, park escalation.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Spins:    100,
		Yields:   50,
		MinSleep: time.Microsecond,
		MaxSleep: time.Millisecond,
	}
}

// Backoff escalates from spinning to yielding to exponentially growing sleeps.
type Backoff struct {
	cfg    BackoffConfig
	spins  int
	yields int
	sleep  *backoff.ExponentialBackOff
}

// NewBackoff creates a hybrid strategy. Zero durations fall back to defaults.
func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Spins < 0 {
		cfg.Spins = 0
	}
	if cfg.Yields < 0 {
		cfg.Yields = 0
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = def.MinSleep
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = def.MaxSleep
	}
	if cfg.MaxSleep < cfg.MinSleep {
		cfg.MaxSleep = cfg.MinSleep
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.MinSleep
	exp.MaxInterval = cfg.MaxSleep
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.Reset()

	return &Backoff{cfg: cfg, sleep: exp}
}

func (b *Backoff) Idle() {
	switch {
	case b.spins < b.cfg.Spins:
		b.spins++
	case b.yields < b.cfg.Yields:
		b.yields++
		runtime.Gosched()
	default:
		d := b.sleep.NextBackOff()
		if d <= 0 {
			d = b.cfg.MaxSleep
		}
		time.Sleep(d)
	}
}

func (b *Backoff) Reset() {
	b.spins = 0
	b.yields = 0
	b.sleep.Reset()
}

// SpinFactory returns Spin strategies.
func SpinFactory() Strategy { return Spin{} }

// YieldFactory returns Yield strategies.
func YieldFactory() Strategy { return Yield{} }

// SleepFactory returns a factory producing Sleep strategies of duration d.
func SleepFactory(d time.Duration) Factory {
	return func() Strategy { return Sleep{Duration: d} }
}

// BackoffFactory returns a factory producing hybrid strategies.
func BackoffFactory(cfg BackoffConfig) Factory {
	return func() Strategy { return NewBackoff(cfg) }
}

// Parse resolves a strategy name from configuration. sleepFor is used by the
// sleep strategy and as the ceiling of the backoff strategy.
func Parse(name string, sleepFor time.Duration) (Factory, error) {
	if sleepFor <= 0 {
		sleepFor = time.Millisecond
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameSpin:
		return SpinFactory, nil
	case "", NameYield:
		return YieldFactory, nil
	case NameSleep:
		return SleepFactory(sleepFor), nil
	case NameBackoff:
		cfg := DefaultBackoffConfig()
		cfg.MaxSleep = sleepFor
		return BackoffFactory(cfg), nil
	default:
		return nil, fmt.Errorf("idle: unknown strategy %q", name)
	}
}

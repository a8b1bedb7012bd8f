package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

type item struct {
	id int64
}

func counterFactory() (Factory[*item], *atomic.Int64) {
	var n atomic.Int64
	return func() (*item, error) {
		return &item{id: n.Add(1)}, nil
	}, &n
}

var strategies = []Strategy{StrategyGrowing, StrategySmooth}

func TestNewValidatesConfig(t *testing.T) {
	factory, _ := counterFactory()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative", Config{MinExp: -1, MaxExp: 2}},
		{"min above max", Config{MinExp: 3, MaxExp: 2}},
		{"too large", Config{MinExp: 1, MaxExp: MaxExponent + 1}},
	}

	for _, strategy := range strategies {
		for _, tt := range tests {
			t.Run(string(strategy)+"/"+tt.name, func(t *testing.T) {
				_, err := New(strategy, factory, tt.cfg)
				assert.ErrorIs(t, err, errspkg.ErrInvalidPoolSize)
				assert.ErrorIs(t, err, errspkg.ErrConfiguration)
			})
		}

		_, err := New[*item](strategy, nil, Config{MinExp: 1, MaxExp: 2})
		assert.ErrorIs(t, err, errspkg.ErrFactoryRequired)
	}

	_, err := New(Strategy("lifo"), factory, Config{})
	assert.ErrorIs(t, err, errspkg.ErrConfiguration)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyGrowing, s)

	s, err = ParseStrategy("Smooth")
	require.NoError(t, err)
	assert.Equal(t, StrategySmooth, s)

	_, err = ParseStrategy("static")
	assert.Error(t, err)
}

func TestPrefill(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			factory, allocs := counterFactory()
			p, err := New(strategy, factory, Config{MinExp: 2, MaxExp: 3})
			require.NoError(t, err)

			assert.Equal(t, 4, p.Live())
			assert.Equal(t, 4, p.Available())
			assert.Equal(t, 4, p.Capacity())
			assert.Equal(t, int64(4), allocs.Load())
		})
	}
}

func TestGrowthScenario(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			factory, _ := counterFactory()
			p, err := New(strategy, factory, Config{MinExp: 2, MaxExp: 3})
			require.NoError(t, err)

			held := make([]*item, 0, 8)
			for i := 0; i < 4; i++ {
				v, err := p.Acquire()
				require.NoError(t, err)
				held = append(held, v)
			}
			assert.Equal(t, 0, p.Available())
			assert.Equal(t, 4, p.Live())

			fifth, err := p.Acquire()
			require.NoError(t, err)
			held = append(held, fifth)
			assert.Equal(t, 5, p.Live())

			for _, v := range held {
				p.Release(v)
			}
			assert.Equal(t, 8, p.Capacity())
			assert.Equal(t, 5, p.Available())

			held = held[:0]
			for i := 0; i < 8; i++ {
				v, err := p.Acquire()
				require.NoError(t, err)
				held = append(held, v)
			}
			assert.Equal(t, 8, p.Live())

			var returned atomic.Bool
			done := make(chan *item, 1)
			go func() {
				v, _ := p.Acquire()
				returned.Store(true)
				done <- v
			}()

			assert.Never(t, returned.Load, 50*time.Millisecond, 5*time.Millisecond, "ninth acquire must block at the ceiling")

			p.Release(held[0])

			select {
			case v := <-done:
				assert.Same(t, held[0], v)
			case <-time.After(time.Second):
				t.Fatal("blocked acquire was not released")
			}
			assert.Equal(t, 8, p.Live())
		})
	}
}

func TestBoundedAtCeiling(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			factory, allocs := counterFactory()
			p, err := New(strategy, factory, Config{MinExp: 0, MaxExp: 2})
			require.NoError(t, err)

			var held []*item
			for i := 0; i < 4; i++ {
				v, err := p.Acquire()
				require.NoError(t, err)
				held = append(held, v)
			}

			acquired := make(chan struct{})
			go func() {
				_, _ = p.Acquire()
				close(acquired)
			}()

			select {
			case <-acquired:
				t.Fatal("acquire returned past the ceiling")
			case <-time.After(50 * time.Millisecond):
			}
			assert.Equal(t, int64(4), allocs.Load())

			p.Release(held[1])
			select {
			case <-acquired:
			case <-time.After(time.Second):
				t.Fatal("acquire did not resume after release")
			}
			assert.Equal(t, int64(4), allocs.Load())
		})
	}
}

func TestConcurrentUniqueness(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			factory, allocs := counterFactory()
			p, err := New(strategy, factory, Config{MinExp: 1, MaxExp: 4})
			require.NoError(t, err)

			var (
				owners sync.Map
				wg     sync.WaitGroup
				dupes  atomic.Int64
			)
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 2000; i++ {
						v, err := p.Acquire()
						if err != nil {
							t.Error(err)
							return
						}
						if _, loaded := owners.LoadOrStore(v, g); loaded {
							dupes.Add(1)
						}
						owners.Delete(v)
						p.Release(v)
					}
				}(g)
			}
			wg.Wait()

			assert.Zero(t, dupes.Load(), "an instance was held by two goroutines at once")
			assert.LessOrEqual(t, allocs.Load(), int64(16))
			assert.LessOrEqual(t, p.Live(), 16)
			assert.Equal(t, p.Live(), p.Available())
		})
	}
}

func TestFactoryErrorKeepsState(t *testing.T) {
	boom := errors.New("boom")
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			fail := false
			factory := func() (*item, error) {
				if fail {
					return nil, boom
				}
				return &item{}, nil
			}
			p, err := New(strategy, factory, Config{MinExp: 0, MaxExp: 1})
			require.NoError(t, err)

			first, err := p.Acquire()
			require.NoError(t, err)

			fail = true
			_, err = p.Acquire()
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, 1, p.Live())

			fail = false
			second, err := p.Acquire()
			require.NoError(t, err)
			assert.NotSame(t, first, second)
			assert.Equal(t, 2, p.Live())
		})
	}
}

func TestPrefillErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	for _, strategy := range strategies {
		_, err := New(strategy, func() (*item, error) { return nil, boom }, Config{MinExp: 1, MaxExp: 2})
		assert.ErrorIs(t, err, boom)
	}
}

func TestSmoothServesOldStoreDuringGrowth(t *testing.T) {
	factory, _ := counterFactory()
	p, err := NewSmooth(factory, Config{MinExp: 1, MaxExp: 3})
	require.NoError(t, err)

	a, _ := p.Acquire()
	b, _ := p.Acquire()
	c, _ := p.Acquire()
	d, _ := p.Acquire()

	p.Release(a)
	p.Release(b)
	// old store is full; this installs a new write store
	p.Release(c)
	assert.NotSame(t, p.read, p.write)
	assert.Equal(t, 4, p.Capacity())
	assert.Equal(t, 2, p.read.capacity())

	p.Release(d)
	assert.Equal(t, 4, p.Available())

	got := map[*item]bool{}
	for i := 0; i < 4; i++ {
		v, err := p.Acquire()
		require.NoError(t, err)
		got[v] = true
	}
	assert.Len(t, got, 4)
	assert.Same(t, p.read, p.write)
	assert.Equal(t, 4, p.Live())
}

func TestSmoothRepeatedGrowthKeepsInstances(t *testing.T) {
	factory, _ := counterFactory()
	p, err := NewSmooth(factory, Config{MinExp: 0, MaxExp: 3})
	require.NoError(t, err)

	var held []*item
	for i := 0; i < 8; i++ {
		v, err := p.Acquire()
		require.NoError(t, err)
		held = append(held, v)
	}
	for _, v := range held {
		p.Release(v)
	}
	assert.Equal(t, 8, p.Available())
	assert.Equal(t, 8, p.Capacity())

	seen := map[*item]bool{}
	for i := 0; i < 8; i++ {
		v, err := p.Acquire()
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, 8, p.Live())
}

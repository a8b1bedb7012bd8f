package messagepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/pool"
)

type ping struct {
	seq    int64
	resets int
}

func (*ping) TypeID() int32 { return 7 }

func (p *ping) Reset() {
	p.seq = 0
	p.resets++
}

type pong struct{}

func (*pong) TypeID() int32 { return 8 }
func (*pong) Reset()        {}

func newPing() Message { return &ping{} }

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(7, "ping", newPing, 1, 2))

	first, ok := r.Stats(7)
	require.True(t, ok)

	calls := 0
	require.NoError(t, r.Register(7, "other", func() Message { calls++; return &ping{} }, 3, 4))
	second, _ := r.Stats(7)

	assert.Equal(t, first, second)
	assert.Equal(t, "ping", second.Name)
	assert.Zero(t, calls)
	assert.Equal(t, 2, second.Live)
	assert.Equal(t, 4, second.Max)
}

func TestRegisterRejectsBadSizes(t *testing.T) {
	r := New()
	err := r.Register(7, "ping", newPing, 3, 1)
	assert.ErrorIs(t, err, errspkg.ErrConfiguration)
	assert.False(t, r.Registered(7))

	assert.ErrorIs(t, r.Register(7, "ping", nil, 1, 2), errspkg.ErrFactoryRequired)
}

func TestCheckoutUnregistered(t *testing.T) {
	r := New()
	_, err := r.Checkout(42)
	assert.ErrorIs(t, err, errspkg.ErrTypeNotRegistered)
	assert.ErrorIs(t, err, errspkg.ErrConfiguration)
	assert.False(t, r.Registered(42))
}

func TestReleaseResetsAndReuses(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(7, "ping", newPing, 0, 0))

	m, err := r.Checkout(7)
	require.NoError(t, err)
	p := m.(*ping)
	p.seq = 99

	require.NoError(t, r.Release(p))
	assert.Equal(t, int64(0), p.seq)
	assert.Equal(t, 1, p.resets)

	again, err := r.Checkout(7)
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestReleaseUnregistered(t *testing.T) {
	r := New()
	err := r.Release(&pong{})
	assert.ErrorIs(t, err, errspkg.ErrTypeNotRegistered)
	assert.NoError(t, r.Release(nil))
}

func TestNilFactoryResult(t *testing.T) {
	r := New()
	err := r.Register(7, "ping", func() Message { return nil }, 0, 1)
	assert.ErrorIs(t, err, errspkg.ErrConfiguration)
}

func TestAllSortedByTypeID(t *testing.T) {
	r := New(WithStrategy(pool.StrategySmooth))
	require.NoError(t, r.Register(8, "pong", func() Message { return &pong{} }, 0, 1))
	require.NoError(t, r.Register(7, "ping", newPing, 1, 1))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, int32(7), all[0].TypeID)
	assert.Equal(t, int32(8), all[1].TypeID)
	assert.Equal(t, 2, all[0].Available)
	assert.Equal(t, 2, all[1].Max)
}

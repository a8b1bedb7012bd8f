package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	for _, capacity := range []int{0, -4, 3, 6, 100} {
		_, err := New[int](capacity)
		assert.ErrorIs(t, err, errspkg.ErrInvalidCapacity, "capacity %d", capacity)
	}

	r, err := New[int](1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Cap())
}

func TestOfferPollFIFO(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	_, ok := r.Poll()
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		assert.True(t, r.Offer(i))
	}
	assert.False(t, r.Offer(5), "offer on a full ring must fail")
	assert.Equal(t, 4, r.Len())

	for i := 1; i <= 4; i++ {
		v, ok := r.Poll()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = r.Poll()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestPollClearsSlot(t *testing.T) {
	r, err := New[*int](2)
	require.NoError(t, err)

	v := 7
	require.True(t, r.Offer(&v))
	_, ok := r.Poll()
	require.True(t, ok)
	assert.Nil(t, r.slots[0])
}

func TestWrapAround(t *testing.T) {
	r, err := New[int](2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, r.Offer(i))
		v, ok := r.Poll()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestSingleProducerSingleConsumerOrdering(t *testing.T) {
	const total = 100000
	r, err := New[int](64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for !r.Offer(i) {
			}
		}
	}()

	next := 0
	for next < total {
		v, ok := r.Poll()
		if !ok {
			continue
		}
		if v != next {
			t.Fatalf("out of order: got %d want %d", v, next)
		}
		next++
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

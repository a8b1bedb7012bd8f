package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

func TestAddAssignsNextFreeChannel(t *testing.T) {
	s := NewStore()

	a, err := s.Add(Entry{Name: "Ping", Endpoint: "localhost:40123"})
	require.NoError(t, err)
	assert.Equal(t, Entry{Name: "ping", Endpoint: "localhost:40123", StreamID: 1}, a)

	_, err = s.Add(Entry{Name: "fixed", Endpoint: "10.0.0.2:40123", StreamID: 3})
	require.NoError(t, err)

	b, err := s.Add(Entry{Name: "pong", Endpoint: "host-b:40123"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.StreamID)

	c, err := s.Add(Entry{Name: "third", Endpoint: "host-c:40123"})
	require.NoError(t, err)
	assert.Equal(t, int32(4), c.StreamID)
}

func TestAddRejectsDuplicates(t *testing.T) {
	s := NewStore()
	_, err := s.Add(Entry{Name: "ping", Endpoint: "a:1", StreamID: 7})
	require.NoError(t, err)

	_, err = s.Add(Entry{Name: "PING", Endpoint: "b:2", StreamID: 8})
	assert.ErrorIs(t, err, errspkg.ErrDuplicateName)

	_, err = s.Add(Entry{Name: "pong", Endpoint: "b:2", StreamID: 7})
	assert.ErrorIs(t, err, errspkg.ErrDuplicateChannel)

	assert.Len(t, s.List(), 1)
}

func TestValidate(t *testing.T) {
	cases := []Entry{
		{Name: "", Endpoint: "a:1"},
		{Name: "x", Endpoint: "no-port"},
		{Name: "x", Endpoint: "a:1", StreamID: -1},
	}
	s := NewStore()
	for _, e := range cases {
		_, err := s.Add(e)
		assert.ErrorIs(t, err, errspkg.ErrInvalidEntry, "%+v", e)
	}
	assert.NoError(t, Entry{Name: "x", Endpoint: "192.168.1.10:9000"}.Validate())
	assert.NoError(t, Entry{Name: "x", Endpoint: "reactor.internal.example:9000"}.Validate())
}

func TestGetIgnoresCase(t *testing.T) {
	s := NewStore()
	_, err := s.Add(Entry{Name: "Pong", Endpoint: "a:1"})
	require.NoError(t, err)

	e, ok := s.Get("PONG")
	require.True(t, ok)
	assert.Equal(t, "pong", e.Name)

	_, ok = s.Get("ping")
	assert.False(t, ok)
}

func TestRemoveFreesChannel(t *testing.T) {
	s := NewStore()
	_, err := s.Add(Entry{Name: "a", Endpoint: "a:1"})
	require.NoError(t, err)
	_, err = s.Add(Entry{Name: "b", Endpoint: "b:1"})
	require.NoError(t, err)

	assert.True(t, s.Remove("A"))
	assert.False(t, s.Remove("a"))

	c, err := s.Add(Entry{Name: "c", Endpoint: "c:1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.StreamID)

	names := []string{}
	for _, e := range s.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"b", "c"}, names)
}

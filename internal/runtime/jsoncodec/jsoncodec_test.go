package jsoncodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	StreamID int32  `json:"streamid"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := entry{Name: "pong", Endpoint: "localhost:40123", StreamID: 3}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"pong","endpoint":"localhost:40123","streamid":3}`, string(data))

	var out entry
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"name\"")
}

func TestEncodeAndDecodeLimited(t *testing.T) {
	buf := &bytes.Buffer{}
	in := entry{Name: "ping", StreamID: 1}
	require.NoError(t, Encode(buf, in))

	var out entry
	require.NoError(t, DecodeLimited(buf, 1024, &out))
	assert.Equal(t, in, out)
}

func TestDecodeLimitedRejectsLargeBodies(t *testing.T) {
	body := `{"name":"` + strings.Repeat("x", 64) + `"}`
	var out entry
	err := DecodeLimited(strings.NewReader(body), 16, &out)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	assert.Error(t, DecodeLimited(strings.NewReader("{"), 16, &out))
}

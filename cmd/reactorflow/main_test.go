package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow"
	"github.com/drblury/reactorflow/internal/runtime/wire"
	"github.com/drblury/reactorflow/messages"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func parseConfigOutput(out string) map[string]string {
	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		key, value, _ := strings.Cut(line, " ")
		values[key] = strings.TrimSpace(value)
	}
	return values
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, t.Context(), "version")
	require.NoError(t, err)
	assert.Equal(t, "reactorflow v"+Version+"\n", out)
}

func TestConfigCommandLayersFlagsAndOverrides(t *testing.T) {
	out, err := execute(t, t.Context(), "config",
		"--name", "ping",
		"--transport", "nats",
		"--set", "reactor.pool.demo.max=6",
		"--set", "reactor.pool.min=2",
	)
	require.NoError(t, err)

	values := parseConfigOutput(out)
	assert.Equal(t, "ping", values["name"])
	assert.Equal(t, "nats", values["transport"])
	assert.Equal(t, "2", values["pool.min"])
	assert.Equal(t, "10", values["pool.max"])
	assert.Equal(t, "2", values["pool.demo.min"], "type overrides start from the default size")
	assert.Equal(t, "6", values["pool.demo.max"])
}

func TestConfigCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reactor:
  name: pong
  lookup:
    url: http://lookup:7666
  dispatch:
    mode: queued
`), 0o600))

	out, err := execute(t, t.Context(), "config", "--config", path, "--validate")
	require.NoError(t, err)
	values := parseConfigOutput(out)
	assert.Equal(t, "pong", values["name"])
	assert.Equal(t, "queued", values["dispatch.mode"])
	assert.Equal(t, "http://lookup:7666", values["lookup.url"])
}

func TestConfigCommandValidate(t *testing.T) {
	_, err := execute(t, t.Context(), "config", "--validate")
	assert.Error(t, err, "a reactor name is required")

	_, err = execute(t, t.Context(), "config", "--set", "broken")
	assert.ErrorIs(t, err, reactorflow.ErrConfiguration)
}

func TestDecodeCommand(t *testing.T) {
	codecs := wire.NewRegistry()
	require.NoError(t, codecs.Register(messages.SampleSchema))
	sample := &messages.Sample{IntField: 3}
	sample.StringField.Set("three")
	frame, err := codecs.Append(nil, sample)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "frame.bin")
	require.NoError(t, os.WriteFile(path, frame, 0o600))

	out, err := execute(t, t.Context(), "decode", path)
	require.NoError(t, err)

	var got struct {
		Type   string         `json:"type"`
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Sample", got.Type)
	assert.Equal(t, "three", got.Fields["stringField"])
	assert.Equal(t, float64(3), got.Fields["intField"])
}

func TestDecodeCommandRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.bin")
	frame := make([]byte, wire.HeaderLength)
	_, err := wire.PutHeader(frame, 0, 99)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, frame, 0o600))

	_, err = execute(t, t.Context(), "decode", path)
	assert.ErrorIs(t, err, reactorflow.ErrUnknownWireType)
}

func TestSendCommand(t *testing.T) {
	store := reactorflow.NewLookupStore()
	_, err := store.Add(reactorflow.Entry{Name: "pong", Endpoint: "pong:40123", StreamID: 9})
	require.NoError(t, err)
	srv := httptest.NewServer(reactorflow.NewLookupServer(store, nil).Routes())
	t.Cleanup(srv.Close)

	out, err := execute(t, t.Context(), "send",
		"--lookup-url", srv.URL,
		"--log-level", "error",
		"--to", "Pong",
		"--type", "sample",
		"--count", "3",
	)
	require.NoError(t, err)
	assert.Equal(t, "sent 3 sample message(s) to Pong\n", out)
}

func TestSendCommandErrors(t *testing.T) {
	srv := httptest.NewServer(reactorflow.NewLookupServer(reactorflow.NewLookupStore(), nil).Routes())
	t.Cleanup(srv.Close)

	_, err := execute(t, t.Context(), "send", "--lookup-url", srv.URL, "--log-level", "error", "--to", "nobody")
	assert.ErrorIs(t, err, reactorflow.ErrPeerNotFound)

	_, err = execute(t, t.Context(), "send", "--lookup-url", srv.URL, "--to", "pong", "--type", "other")
	assert.ErrorContains(t, err, "unknown message type")

	_, err = execute(t, t.Context(), "send", "--lookup-url", srv.URL)
	assert.Error(t, err, "--to is required")
}

func TestLookupCommandStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := execute(t, ctx, "lookup", "--address", "127.0.0.1:0", "--log-level", "error")
	assert.NoError(t, err)
}

func TestWrapString(t *testing.T) {
	wrapped := wrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short help", wrapString("  short   help "))
}

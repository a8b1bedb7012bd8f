package reactorflow_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow"
	"github.com/drblury/reactorflow/messages"
)

func newReactor(t *testing.T, name, lookupURL string) *reactorflow.Reactor {
	t.Helper()
	conf := reactorflow.DefaultConfig()
	conf.Name = name
	conf.Endpoint = name + ":40000"
	conf.LookupURL = lookupURL
	conf.Pool = reactorflow.PoolSize{Min: 1, Max: 2}

	r, err := reactorflow.NewReactor(t.Context(), &conf, reactorflow.WithLogger(reactorflow.NewDiscardLogger()))
	require.NoError(t, err)
	for _, m := range messages.All() {
		require.NoError(t, r.RegisterMessage(m.Codec, m.Factory))
	}
	return r
}

func start(t *testing.T, r *reactorflow.Reactor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()
	select {
	case <-r.Running():
	case err := <-done:
		cancel()
		t.Fatalf("reactor stopped: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("reactor did not start")
	}
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestPingPongThroughLookupService(t *testing.T) {
	store := reactorflow.NewLookupStore()
	lookupSrv := httptest.NewServer(reactorflow.NewLookupServer(store, nil).Routes())
	t.Cleanup(lookupSrv.Close)

	got := make(chan string, 1)
	pong := newReactor(t, "pong", lookupSrv.URL)
	require.NoError(t, reactorflow.RegisterHandler(pong, messages.DemoTypeID, func(d *messages.Demo) error {
		got <- d.StringField.String()
		return nil
	}))
	ping := newReactor(t, "ping", lookupSrv.URL)

	start(t, pong)
	start(t, ping)
	assert.NotZero(t, pong.Self().StreamID)
	assert.NotEqual(t, pong.Self().StreamID, ping.Self().StreamID)

	msg, err := ping.Checkout(messages.DemoTypeID)
	require.NoError(t, err)
	msg.(*messages.Demo).StringField.Set("hello")
	require.NoError(t, ping.Signal(t.Context(), msg, "PONG"))

	select {
	case s := <-got:
		assert.Equal(t, "hello", s)
	case <-time.After(5 * time.Second):
		t.Fatal("pong did not receive the message")
	}

	_, ok := store.Get("pong")
	assert.True(t, ok)
}

func TestSignalToUnknownPeer(t *testing.T) {
	lookupSrv := httptest.NewServer(reactorflow.NewLookupServer(reactorflow.NewLookupStore(), nil).Routes())
	t.Cleanup(lookupSrv.Close)

	ping := newReactor(t, "ping", lookupSrv.URL)
	start(t, ping)

	msg, err := ping.Checkout(messages.SampleTypeID)
	require.NoError(t, err)
	assert.ErrorIs(t, ping.Signal(t.Context(), msg, "nobody"), reactorflow.ErrPeerNotFound)
}

func TestDefaultConfigIsValidOnceNamed(t *testing.T) {
	conf := reactorflow.DefaultConfig()
	require.Error(t, reactorflow.ValidateConfig(&conf))

	conf.Name = "ping"
	assert.NoError(t, reactorflow.ValidateConfig(&conf))
	assert.True(t, reactorflow.DefaultTransportRegistry.Has("channel"))
	assert.True(t, reactorflow.DefaultTransportRegistry.Has("kafka"))
}

func TestNewReactorRejectsInvalidConfig(t *testing.T) {
	conf := reactorflow.DefaultConfig()
	conf.Name = "ping"
	conf.Pool = reactorflow.PoolSize{Min: 4, Max: 2}
	_, err := reactorflow.NewReactor(t.Context(), &conf)
	assert.ErrorIs(t, err, reactorflow.ErrInvalidPoolSize)
	assert.ErrorIs(t, err, reactorflow.ErrConfiguration)
}

func TestMetadataAndIDHelpers(t *testing.T) {
	md := reactorflow.NewMetadata("key", "value")
	assert.Equal(t, "value", md["key"])
	assert.Len(t, reactorflow.CreateULID(), 26)
	assert.Equal(t, "reactorflow-channel-7", reactorflow.ChannelTopic(7))
}

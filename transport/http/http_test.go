package http

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow/transport"
	"github.com/drblury/reactorflow/transport/transporttest"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, ...*message.Message) error { return nil }
func (nopPublisher) Close() error                              { return nil }

type fakeServer struct {
	mu      sync.Mutex
	topics  []string
	started chan struct{}
}

func (f *fakeServer) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return make(chan *message.Message), nil
}

func (f *fakeServer) Close() error { return nil }

func (f *fakeServer) StartHTTPServer() error {
	close(f.started)
	return nil
}

func stubFactories(t *testing.T, pub func(watermillhttp.PublisherConfig) (message.Publisher, error), sub message.Subscriber) {
	t.Helper()
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() { PublisherFactory, SubscriberFactory = origPub, origSub })

	PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		return pub(cfg)
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return sub, nil
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := Capabilities()
	assert.True(t, caps.PointToPoint)
	assert.Equal(t, transport.HTTPCapabilities, transport.GetCapabilities(TransportName))
}

func TestTargetURL(t *testing.T) {
	msg := message.NewMessage("1", nil)

	_, err := TargetURL("reactorflow-channel-1", msg, "")
	assert.ErrorIs(t, err, ErrNoEndpoint)

	got, err := TargetURL("reactorflow-channel-1", msg, "http://relay:9000/")
	require.NoError(t, err)
	assert.Equal(t, "http://relay:9000/reactorflow-channel-1", got)

	msg.Metadata.Set(transport.MetadataEndpoint, "peer:40123")
	got, err = TargetURL("/reactorflow-channel-1", msg, "http://relay:9000")
	require.NoError(t, err)
	assert.Equal(t, "http://peer:40123/reactorflow-channel-1", got)
}

func TestPublisherRoutesByEndpoint(t *testing.T) {
	var captured watermillhttp.PublisherConfig
	stubFactories(t, func(cfg watermillhttp.PublisherConfig) (message.Publisher, error) {
		captured = cfg
		return nopPublisher{}, nil
	}, &fakeServer{started: make(chan struct{})})

	_, err := Build(context.Background(), &transporttest.Config{HTTPServerAddress: ":0"}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NotNil(t, captured.MarshalMessageFunc)

	msg := message.NewMessage("id-1", []byte{5, 0, 0, 0})
	msg.Metadata.Set(transport.MetadataEndpoint, "peer:40123")
	req, err := captured.MarshalMessageFunc("reactorflow-channel-2", msg)
	require.NoError(t, err)
	assert.Equal(t, "http://peer:40123/reactorflow-channel-2", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0}, body)

	_, err = captured.MarshalMessageFunc("reactorflow-channel-2", message.NewMessage("id-2", nil))
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestSubscriberMountsTopicAndStartsOnce(t *testing.T) {
	fake := &fakeServer{started: make(chan struct{})}
	stubFactories(t, func(watermillhttp.PublisherConfig) (message.Publisher, error) {
		return nopPublisher{}, nil
	}, fake)

	tr, err := Build(context.Background(), &transporttest.Config{HTTPServerAddress: ":0"}, watermill.NopLogger{})
	require.NoError(t, err)

	_, err = tr.Subscriber.Subscribe(context.Background(), "reactorflow-channel-3")
	require.NoError(t, err)
	_, err = tr.Subscriber.Subscribe(context.Background(), "/reactorflow-channel-4")
	require.NoError(t, err)

	select {
	case <-fake.started:
	case <-time.After(time.Second):
		t.Fatal("server not started")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"/reactorflow-channel-3", "/reactorflow-channel-4"}, fake.topics)
}

func TestBuildFailures(t *testing.T) {
	boom := errors.New("boom")
	stubFactories(t, func(watermillhttp.PublisherConfig) (message.Publisher, error) {
		return nil, boom
	}, &fakeServer{})

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)

	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, boom
	}
	PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nopPublisher{}, nil
	}
	_, err = Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
}

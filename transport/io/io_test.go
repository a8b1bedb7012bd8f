package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow/transport"
	"github.com/drblury/reactorflow/transport/transporttest"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg)
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := Capabilities()
	assert.True(t, caps.SupportsOrdering)
	assert.False(t, caps.Durable)
}

func TestBuildDefaultsPath(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilePath, tr.Publisher.(*Publisher).path)
	assert.Equal(t, DefaultFilePath, tr.Subscriber.(*Subscriber).path)
}

func TestPublishSubscribeFiltersByTopic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	pub := NewPublisher(path)
	sub := NewSubscriber(path, watermill.NopLogger{})
	t.Cleanup(func() { _ = sub.Close() })

	// Lines written before the subscription are not replayed.
	require.NoError(t, pub.Publish("reactorflow-channel-1", message.NewMessage("old", []byte("old"))))

	ch, err := sub.Subscribe(t.Context(), "reactorflow-channel-1")
	require.NoError(t, err)

	first := message.NewMessage("a", []byte{0, 1, 2})
	first.Metadata.Set(transport.MetadataSource, "ping")
	require.NoError(t, pub.Publish("reactorflow-channel-2", message.NewMessage("other", nil)))
	require.NoError(t, pub.Publish("reactorflow-channel-1", first, message.NewMessage("b", []byte("b"))))

	got := receive(t, ch)
	assert.Equal(t, "a", got.UUID)
	assert.Equal(t, []byte{0, 1, 2}, []byte(got.Payload))
	assert.Equal(t, "ping", got.Metadata.Get(transport.MetadataSource))
	assert.Equal(t, "b", receive(t, ch).UUID)
}

func TestSubscriberSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	sub := NewSubscriber(path, nil)
	t.Cleanup(func() { _ = sub.Close() })

	ch, err := sub.Subscribe(t.Context(), "t")
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, NewPublisher(path).Publish("t", message.NewMessage("ok", nil)))
	assert.Equal(t, "ok", receive(t, ch).UUID)
}

func TestCloseStopsSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	sub := NewSubscriber(path, nil)
	ch, err := sub.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, open := <-ch
	assert.False(t, open)

	_, err = sub.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrClosed)

	pub := NewPublisher(path)
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish("t", message.NewMessage("x", nil)), ErrClosed)
}

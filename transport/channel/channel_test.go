package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow/transport"
	"github.com/drblury/reactorflow/transport/transporttest"
)

type countingPubSub struct {
	closed int
}

func (c *countingPubSub) Publish(string, ...*message.Message) error { return nil }

func (c *countingPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (c *countingPubSub) Close() error {
	c.closed++
	return nil
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.ChannelCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestReactorsShareOnePubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := Build(ctx, &transporttest.Config{ReactorName: "a"}, watermill.NopLogger{})
	require.NoError(t, err)
	b, err := Build(ctx, &transporttest.Config{ReactorName: "b"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 2, Attached())

	topic := transport.ChannelTopic(9)
	msgs, err := b.Subscriber.Subscribe(ctx, topic)
	require.NoError(t, err)

	require.NoError(t, a.Publisher.Publish(topic, message.NewMessage("1", []byte{1, 2, 3})))
	select {
	case msg := <-msgs:
		assert.Equal(t, []byte{1, 2, 3}, []byte(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("fragment not delivered across transports")
	}

	cancel()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "closing twice detaches once")
	assert.Equal(t, 1, Attached())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, Attached())
}

func TestLastDetachClosesPubSub(t *testing.T) {
	original := Factory
	t.Cleanup(func() { Factory = original })

	created := 0
	pubSub := &countingPubSub{}
	Factory = func(cfg gochannel.Config, _ watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		created++
		assert.Equal(t, int64(OutputBuffer), cfg.OutputChannelBuffer)
		return pubSub, pubSub
	}

	a, err := Build(context.Background(), &transporttest.Config{}, nil)
	require.NoError(t, err)
	b, err := Build(context.Background(), &transporttest.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	require.NoError(t, a.Close())
	assert.Equal(t, 0, pubSub.closed)
	require.NoError(t, b.Close())
	assert.Equal(t, 1, pubSub.closed, "shared pub/sub is closed once")

	c, err := Build(context.Background(), &transporttest.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, created, "a fresh pub/sub after the last detach")
	require.NoError(t, c.Close())
}

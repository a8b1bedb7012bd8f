package jetstream

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reactorflow/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.DefaultRegistry.Has("jetstream"), "alias")
	caps := Capabilities()
	assert.True(t, caps.Durable)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222"}.withDefaults()
	assert.Equal(t, DefaultStream, cfg.StreamName)
	assert.Equal(t, "reactorflow", cfg.Consumer)
	assert.Equal(t, DefaultMaxDeliver, cfg.MaxDeliver)
	assert.Equal(t, DefaultAckWait, cfg.AckWait)
	assert.Equal(t, DefaultMaxAge, cfg.MaxAge)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, DefaultFetchBatch, cfg.FetchBatch)

	custom := Config{StreamName: "S", Consumer: "c", MaxDeliver: 9, AckWait: time.Second, Replicas: 3}.withDefaults()
	assert.Equal(t, "S", custom.StreamName)
	assert.Equal(t, 9, custom.MaxDeliver)
	assert.Equal(t, time.Second, custom.AckWait)
	assert.Equal(t, 3, custom.Replicas)
}

func TestNaming(t *testing.T) {
	tr := &Transport{config: Config{Consumer: "reactorflow-ping.v2"}.withDefaults()}
	assert.Equal(t, "REACTORFLOW.reactorflow-channel-4", tr.subject("reactorflow-channel-4"))
	assert.Equal(t, "reactorflow-ping_v2_reactorflow-channel-4", tr.durable("reactorflow-channel-4"))

	stream := tr.streamConfig()
	assert.Equal(t, []string{"REACTORFLOW.>"}, stream.Subjects)
	assert.Equal(t, nats.InterestPolicy, stream.Retention)
}

func TestMessageConversionKeepsUUIDAndMetadata(t *testing.T) {
	msg := message.NewMessage("01HZY", []byte{1, 2, 3})
	msg.Metadata.Set(transport.MetadataSource, "ping")

	natsMsg := toNATS("REACTORFLOW.t", msg)
	assert.Equal(t, "REACTORFLOW.t", natsMsg.Subject)

	back := fromNATS(natsMsg)
	assert.Equal(t, "01HZY", back.UUID)
	assert.Equal(t, []byte{1, 2, 3}, []byte(back.Payload))
	assert.Equal(t, "ping", back.Metadata.Get(transport.MetadataSource))
	assert.Empty(t, back.Metadata.Get(HeaderUUID))
}

func TestFromNATSGeneratesUUID(t *testing.T) {
	msg := fromNATS(&nats.Msg{Data: []byte("x")})
	require.NotEmpty(t, msg.UUID)
}

func TestClosedTransportRejectsWork(t *testing.T) {
	tr := &Transport{closed: true}
	assert.ErrorIs(t, tr.Publish("t", message.NewMessage("1", nil)), ErrClosed)
	_, err := tr.Subscribe(t.Context(), "t")
	assert.ErrorIs(t, err, ErrClosed)
}

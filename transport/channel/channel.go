// Package channel provides the in-memory transport. Every reactor in a
// process that builds it shares one gochannel pub/sub, so peers started side
// by side reach each other without a broker.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/reactorflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer sizes each subscription's output channel.
const OutputBuffer = 256

// Factory allows overriding the pub/sub creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

var shared struct {
	sync.Mutex
	pub  message.Publisher
	sub  message.Subscriber
	refs int
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build attaches to the process-wide pub/sub, creating it on first use.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	shared.Lock()
	defer shared.Unlock()
	if shared.refs == 0 {
		shared.pub, shared.sub = Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	}
	shared.refs++

	h := &handle{pub: shared.pub, sub: shared.sub}
	return transport.Transport{Publisher: h, Subscriber: h}, nil
}

// Attached reports how many transports currently share the pub/sub.
func Attached() int {
	shared.Lock()
	defer shared.Unlock()
	return shared.refs
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// handle is one reactor's view of the shared pub/sub. Closing it detaches;
// the last detach closes the pub/sub.
type handle struct {
	pub  message.Publisher
	sub  message.Subscriber
	once sync.Once
}

func (h *handle) Publish(topic string, messages ...*message.Message) error {
	return h.pub.Publish(topic, messages...)
}

func (h *handle) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return h.sub.Subscribe(ctx, topic)
}

func (h *handle) Close() error {
	var err error
	h.once.Do(func() { err = detach() })
	return err
}

func detach() error {
	shared.Lock()
	defer shared.Unlock()
	shared.refs--
	if shared.refs > 0 {
		return nil
	}
	pub, sub := shared.pub, shared.sub
	shared.pub, shared.sub, shared.refs = nil, nil, 0

	errs := []error{sub.Close()}
	if any(pub) != any(sub) {
		errs = append(errs, pub.Close())
	}
	return errors.Join(errs...)
}

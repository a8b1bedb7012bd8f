// Package transport defines how reactors move encoded fragments between
// processes. Each backend (kafka, rabbitmq, nats, aws, ...) lives in its own
// sub-package and registers a Builder with the transport registry.
//
// Every reactor consumes exactly one topic, ChannelTopic(channel), where
// channel is the stream id the lookup service assigned to it. One fragment
// is carried as the payload of one watermill message.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys set on every outbound message.
const (
	// MetadataEndpoint is the host:port of the destination reactor. Point to
	// point transports route on it.
	MetadataEndpoint = "reactorflow_endpoint"
	// MetadataSource names the sending reactor.
	MetadataSource = "reactorflow_source"
	// MetadataTypeID is the wire type id of the fragment.
	MetadataTypeID = "reactorflow_type"
)

// ChannelTopic is the topic a reactor listening on channel consumes. The name
// only uses characters every backend accepts, SNS included.
func ChannelTopic(channel int32) string {
	return fmt.Sprintf("reactorflow-channel-%d", channel)
}

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides. A pair backed by one pub/sub is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil && any(t.Publisher) != any(t.Subscriber) {
		errs = append(errs, t.Publisher.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string
	// GetReactorName returns the lowercased name of the reactor the transport
	// is built for. Backends use it to name consumer groups and queues.
	GetReactorName() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// IO
	GetIOFile() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// ConsumerName derives a per-reactor consumer group or queue suffix.
func ConsumerName(cfg Config) string {
	if name := cfg.GetReactorName(); name != "" {
		return "reactorflow-" + name
	}
	return "reactorflow"
}

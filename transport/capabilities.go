package transport

// Capabilities describes what a transport backend guarantees. The reactor
// reports them on its admin API and checks frame sizes against them before
// publishing.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// SupportsOrdering is true when fragments sent to one channel arrive in
	// the order they were published.
	SupportsOrdering bool

	// SupportsAck is true when the backend waits for an explicit ack.
	SupportsAck bool

	// SupportsNack is true when a nacked fragment is redelivered.
	SupportsNack bool

	// SupportsBatching is true when the backend batches publishes.
	SupportsBatching bool

	// SupportsTracing is true when metadata travels as native headers.
	SupportsTracing bool

	// Durable is true when fragments survive a restart of the broker or of
	// the consuming reactor.
	Durable bool

	// PointToPoint is true when the publisher addresses the destination
	// endpoint directly instead of a broker.
	PointToPoint bool

	// InProcess is true when peers must live in the same process.
	InProcess bool

	// MaxMessageSize is the largest payload in bytes. Zero means unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a frame of n bytes can be published.
func (c Capabilities) Fits(n int) bool {
	return c.MaxMessageSize <= 0 || int64(n) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		InProcess:        true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsBatching: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
		Durable:          true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1 << 20,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsBatching: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsBatching: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   256 << 10,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
		PointToPoint:    true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}

package transport

// Capabilities describes what a backend guarantees to the channel sitting on
// top of it.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsOrdering indicates messages on one topic arrive in publish order.
	SupportsOrdering bool

	// SupportsAck indicates the backend redelivers messages that were not
	// acknowledged. Without it a lost message is gone and only resends help.
	SupportsAck bool

	// SupportsTracing indicates the transport propagates metadata headers natively.
	SupportsTracing bool

	// Bidirectional indicates one process can both publish and subscribe
	// through the same handle. The HTTP transport, for instance, only
	// receives on its own server address.
	Bidirectional bool

	// MaxMessageSize is the maximum payload size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Lossy reports whether a message dropped in transit is never redelivered.
func (c Capabilities) Lossy() bool {
	return !c.SupportsAck
}

// Fits reports whether a payload of size bytes is accepted by the backend.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		Bidirectional:    true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Bidirectional:    true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Bidirectional:    true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		Bidirectional:   true,
		MaxMessageSize:  1048576, // Default 1MB
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Bidirectional:    true,
		MaxMessageSize:   262144, // 256KB
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		Bidirectional:    true,
	}
)

// GetCapabilities looks name up in DefaultRegistry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}

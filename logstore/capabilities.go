package logstore

// Capabilities describes the guarantees a store backend provides. Use this to
// introspect what a configured backend can do at runtime.
type Capabilities struct {
	// Name is the backend name as registered.
	Name string

	// Durable indicates events survive a process restart. The in-memory
	// channel backend is not durable.
	Durable bool

	// SupportsExpectedVersion indicates Append enforces non-negative expected
	// versions. Backends without the check reject such appends.
	SupportsExpectedVersion bool

	// TotalOrder indicates Sequence is totally ordered across all streams,
	// not just within one stream.
	TotalOrder bool

	// MaxEventSize is the maximum event size in bytes (0 = unlimited/unknown).
	MaxEventSize int64
}

// SharedAcrossProcesses reports whether two adapter instances in different
// processes can use this backend as a common transport. Only durable backends
// qualify; the channel backend is limited to instances in one process.
func (c Capabilities) SharedAcrossProcesses() bool {
	return c.Durable
}

// Predefined capability sets for the built-in backends.
var (
	// ChannelCapabilities for the in-memory channel store.
	ChannelCapabilities = Capabilities{
		Name:                    "channel",
		Durable:                 false,
		SupportsExpectedVersion: true,
		TotalOrder:              true,
	}

	// JetStreamCapabilities for the NATS JetStream store.
	JetStreamCapabilities = Capabilities{
		Name:                    "nats-jetstream",
		Durable:                 true,
		SupportsExpectedVersion: true,
		TotalOrder:              true,
		MaxEventSize:            1 << 20,
	}

	// KafkaCapabilities for the Kafka store. The log lives in a single
	// partition, so the order is total but the expected-version check is not
	// available.
	KafkaCapabilities = Capabilities{
		Name:                    "kafka",
		Durable:                 true,
		SupportsExpectedVersion: false,
		TotalOrder:              true,
	}
)

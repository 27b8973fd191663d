// Package logstore defines the durable append-only log boundary that logcast
// uses as its cross-node transport. Each backend implementation (jetstream,
// kafka, channel) lives in its own sub-package and registers itself with the
// store registry.
//
// The model is a multi-stream log: one stream per topic, created implicitly
// on first append. A subscription covers all streams at once and delivers
// every event appended from the moment it is established, in the order the
// store assigns them. There is no history replay.
package logstore

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
)

// Version is the expected-version check passed to Append.
type Version int64

// AnyVersion disables the optimistic-concurrency check. Broadcast streams are
// logs of facts, not mutable aggregates, so this is the only value the
// adapter ever passes; backends that can enforce a real check (JetStream)
// honor non-negative values for other callers.
const AnyVersion Version = -1

// Event is the unit written to the log.
type Event struct {
	// Stream names the log stream; for the adapter this is the topic.
	Stream string

	// Type is the schema tag. Consumers skip events whose tag they do not
	// recognize, so a store may be shared with unrelated uses.
	Type string

	// Data is the serialized envelope.
	Data []byte
}

// RecordedEvent is an Event as read back from the live feed, together with
// the position the store assigned to it.
type RecordedEvent struct {
	Event

	// Sequence is the store's append order. It is totally ordered per stream;
	// backends that keep a single log also make it total across streams.
	Sequence uint64
}

// Subscription is a live all-streams feed. It never terminates on its own
// and must be released with Close.
type Subscription interface {
	// Events delivers appended events in store order. The channel is closed
	// after the feed is lost or the subscription is closed.
	Events() <-chan RecordedEvent

	// Err reports at most one terminal error when the feed is lost. A closed
	// Events channel with no error means Close was called.
	Err() <-chan error

	Close() error
}

// Store is the durable log handle owned by exactly one adapter instance.
type Store interface {
	// Append durably writes ev under the given stream. It returns once the
	// store has accepted the event, or an error if it could not.
	Append(ctx context.Context, stream string, expected Version, ev Event) error

	// SubscribeAll establishes the live feed over every stream. Events
	// appended before the call are not delivered.
	SubscribeAll(ctx context.Context) (Subscription, error)

	Close() error
}

// Builder is the function signature for creating a store from config.
// Each backend package provides a Builder that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Store, error)

// Config provides the configuration values needed by store backends. The
// interface lets backends access only the keys they need without depending
// on the full config package.
type Config interface {
	// GetLogStore returns the backend name.
	GetLogStore() string

	// NATS JetStream
	GetNATSURL() string
	GetJetStreamName() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaLogTopic() string
}

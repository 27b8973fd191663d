// Package kafka provides a Kafka-backed log store for logcast.
//
// The whole pubsub namespace lives in one single-partition topic; the stream
// (topic) name travels as the message key and the schema tag as a header.
// A single partition trades throughput for the total append order the
// broadcast design relies on, and it is why the expected-version check is
// not available here.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/segmentio/kafka-go"

	"github.com/drblury/logcast/logstore"
)

// StoreName is the name used to register this backend.
const StoreName = "kafka"

const (
	// DefaultLogTopic is used when no log topic is configured.
	DefaultLogTopic = "logcast-log"

	hdrEventType = "logcast-event-type"

	subscribeBuffer = 256
	maxFetchBytes   = 10 << 20
)

func init() {
	Register()
}

// Register adds this backend to the default store registry.
func Register() {
	logstore.RegisterWithCapabilities(StoreName, Build, logstore.KafkaCapabilities)
}

// Build creates a Kafka store from the shared config surface.
func Build(ctx context.Context, cfg logstore.Config, logger watermill.LoggerAdapter) (logstore.Store, error) {
	return New(Config{
		Brokers: cfg.GetKafkaBrokers(),
		Topic:   cfg.GetKafkaLogTopic(),
	}, logger)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() logstore.Capabilities {
	return logstore.KafkaCapabilities
}

// Config holds Kafka-specific configuration.
type Config struct {
	// Brokers is the list of broker addresses.
	Brokers []string

	// Topic is the single-partition log topic. Defaults to "logcast-log".
	Topic string
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = DefaultLogTopic
	}
	return c
}

// Store implements logstore.Store on a Kafka topic.
type Store struct {
	config Config
	logger watermill.LoggerAdapter
	writer *kafka.Writer

	closed   bool
	closedMu sync.RWMutex
}

// New creates a Kafka store. The writer uses synchronous, fully acknowledged
// writes so Append only returns once the broker has the event.
func New(cfg Config, logger watermill.LoggerAdapter) (*Store, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka store requires at least one broker address")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Store{config: cfg, logger: logger, writer: writer}, nil
}

// Append writes the event keyed by stream. Kafka offers no per-key
// conditional produce, so non-negative expected versions are rejected.
func (s *Store) Append(ctx context.Context, stream string, expected logstore.Version, ev logstore.Event) error {
	if s.isClosed() {
		return logstore.ErrStoreClosed
	}
	if expected != logstore.AnyVersion {
		return logstore.ErrVersionCheckUnsupported
	}

	msg := kafka.Message{
		Key:   []byte(stream),
		Value: ev.Data,
		Headers: []kafka.Header{
			{Key: hdrEventType, Value: []byte(ev.Type)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.config.Topic, err)
	}
	return nil
}

// SubscribeAll reads the log topic from the current end. The reader is not
// part of a consumer group: every adapter instance sees every event.
func (s *Store) SubscribeAll(ctx context.Context) (logstore.Subscription, error) {
	if s.isClosed() {
		return nil, logstore.ErrStoreClosed
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.config.Brokers,
		Topic:     s.config.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  maxFetchBytes,
	})
	if err := reader.SetOffset(kafka.LastOffset); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to seek to end of %s: %w", s.config.Topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		events: make(chan logstore.RecordedEvent, subscribeBuffer),
		errs:   make(chan error, 1),
		cancel: cancel,
		reader: reader,
	}

	go sub.pump(subCtx)

	return sub, nil
}

// Close flushes and closes the writer. Open subscriptions keep their readers
// until closed individually.
func (s *Store) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	return s.writer.Close()
}

func (s *Store) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

type subscription struct {
	events chan logstore.RecordedEvent
	errs   chan error
	cancel context.CancelFunc
	reader *kafka.Reader

	closeOnce sync.Once
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.events)

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				select {
				case s.errs <- err:
				default:
				}
			}
			return
		}

		ev := logstore.RecordedEvent{
			Event: logstore.Event{
				Stream: string(msg.Key),
				Data:   msg.Value,
			},
			// Offsets start at zero; sequences at one.
			Sequence: uint64(msg.Offset) + 1,
		}
		for _, h := range msg.Headers {
			if h.Key == hdrEventType {
				ev.Type = string(h.Value)
			}
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) Events() <-chan logstore.RecordedEvent { return s.events }
func (s *subscription) Err() <-chan error                     { return s.errs }

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.reader.Close()
	})
	return err
}

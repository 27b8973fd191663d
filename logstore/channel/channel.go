// Package channel provides an in-memory log store over Go channels. It is
// useful for testing and local development: several adapter instances in one
// process can share a single Store and behave like nodes sharing a durable
// log. Nothing survives a restart.
package channel

import (
	"context"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/logcast/logstore"
)

// StoreName is the name used to register this backend.
const StoreName = "channel"

// allSubject is the single internal gochannel topic carrying every append.
// Fanning everything through one subject is what gives subscribers the
// store's total order.
const allSubject = "logcast.all"

const (
	metaStream   = "logcast_stream"
	metaType     = "logcast_type"
	metaSequence = "logcast_sequence"
)

// Factory allows overriding the pub/sub creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	Register()
}

// Register adds this backend to the default store registry.
func Register() {
	logstore.RegisterWithCapabilities(StoreName, Build, logstore.ChannelCapabilities)
}

// Build creates a new in-memory channel store.
func Build(ctx context.Context, cfg logstore.Config, logger watermill.LoggerAdapter) (logstore.Store, error) {
	return New(logger), nil
}

// Capabilities returns the capabilities of this backend.
func Capabilities() logstore.Capabilities {
	return logstore.ChannelCapabilities
}

// Store is an in-memory, single-process log store.
type Store struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	seq      uint64
	versions map[string]int64 // events appended per stream
	subs     map[uint64]*subscription
	nextID   uint64
	closed   bool
}

// New creates an in-memory channel store. Share the returned Store between
// adapter instances to simulate a cluster in one process.
func New(logger watermill.LoggerAdapter) *Store {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Store{
		pubsub:   Factory(gochannel.Config{OutputChannelBuffer: 1024}, logger),
		logger:   logger,
		versions: make(map[string]int64),
		subs:     make(map[uint64]*subscription),
	}
}

// Append assigns the next global sequence and fans the event out to every
// live subscription. The mutex spans sequence assignment and publication so
// subscribers observe appends in sequence order; publishing outside the lock
// would let two appends swap places between sequencing and delivery. The
// price is backpressure: the per-subscriber buffers are bounded, so a
// subscriber that stops draining eventually blocks every append on every
// stream. Acceptable for an in-memory test backend.
func (s *Store) Append(ctx context.Context, stream string, expected logstore.Version, ev logstore.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return logstore.ErrStoreClosed
	}
	if expected != logstore.AnyVersion && int64(expected) != s.versions[stream] {
		return logstore.ErrVersionConflict
	}

	s.seq++
	msg := message.NewMessage(watermill.NewUUID(), ev.Data)
	msg.Metadata.Set(metaStream, stream)
	msg.Metadata.Set(metaType, ev.Type)
	msg.Metadata.Set(metaSequence, strconv.FormatUint(s.seq, 10))

	if err := s.pubsub.Publish(allSubject, msg); err != nil {
		return err
	}

	s.versions[stream]++
	return nil
}

// SubscribeAll establishes a live feed. Only events appended after the call
// are delivered, matching the no-replay contract.
func (s *Store) SubscribeAll(ctx context.Context) (logstore.Subscription, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, logstore.ErrStoreClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := s.pubsub.Subscribe(subCtx, allSubject)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{
		events: make(chan logstore.RecordedEvent, 256),
		errs:   make(chan error, 1),
		cancel: cancel,
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.mu.Unlock()

	sub.onClose = func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}

	go sub.pump(msgs, s.logger)

	return sub, nil
}

// Close tears down the store and signals every open subscription that the
// feed is gone for good.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[uint64]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.errs <- logstore.ErrStoreClosed:
		default:
		}
	}

	return s.pubsub.Close()
}

type subscription struct {
	events    chan logstore.RecordedEvent
	errs      chan error
	cancel    context.CancelFunc
	onClose   func()
	closeOnce sync.Once
}

func (s *subscription) pump(msgs <-chan *message.Message, logger watermill.LoggerAdapter) {
	defer close(s.events)

	for msg := range msgs {
		seq, err := strconv.ParseUint(msg.Metadata.Get(metaSequence), 10, 64)
		if err != nil {
			logger.Error("Dropping event with malformed sequence metadata", err, nil)
			msg.Ack()
			continue
		}

		s.events <- logstore.RecordedEvent{
			Event: logstore.Event{
				Stream: msg.Metadata.Get(metaStream),
				Type:   msg.Metadata.Get(metaType),
				Data:   msg.Payload,
			},
			Sequence: seq,
		}
		msg.Ack()
	}
}

func (s *subscription) Events() <-chan logstore.RecordedEvent { return s.events }
func (s *subscription) Err() <-chan error                     { return s.errs }

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// Package jetstream provides a NATS JetStream log store for logcast.
//
// One JetStream stream holds the whole pubsub namespace; every topic maps to
// a subject under the stream's wildcard. JetStream's per-stream sequence is
// the total append order, and its expected-last-subject-sequence check backs
// the optional optimistic append.
package jetstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	"github.com/drblury/logcast/logstore"
)

// StoreName is the name used to register this backend.
const StoreName = "nats-jetstream"

const (
	// DefaultStreamName is used when no stream name is configured.
	DefaultStreamName = "LOGCAST"

	// hdrEventType carries the schema tag so consumers can skip unrelated
	// events without decoding them.
	hdrEventType = "Logcast-Event-Type"

	// hdrStream carries the original stream (topic) name, which may contain
	// characters that are not valid in a NATS subject token.
	hdrStream = "Logcast-Stream"

	subscribeBuffer = 256
)

func init() {
	Register()
}

// Register adds this backend to the default store registry.
func Register() {
	logstore.RegisterWithCapabilities(StoreName, Build, logstore.JetStreamCapabilities)
}

// Build creates a JetStream store from the shared config surface.
func Build(ctx context.Context, cfg logstore.Config, logger watermill.LoggerAdapter) (logstore.Store, error) {
	return New(Config{
		URL:        cfg.GetNATSURL(),
		StreamName: cfg.GetJetStreamName(),
	}, logger)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() logstore.Capabilities {
	return logstore.JetStreamCapabilities
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream holding all topics. Defaults to
	// "LOGCAST". Two adapters form one pubsub cluster exactly when they share
	// a stream name.
	StreamName string

	// Replicas is the number of stream replicas (for clustering).
	Replicas int

	// MaxAge bounds how long events are retained. Zero keeps the server
	// default. Retention only matters for operators; the adapter never
	// replays history.
	MaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Store implements logstore.Store on NATS JetStream.
type Store struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subjectPrefix string

	subs   map[uint64]*subscription
	nextID uint64
	subMu  sync.Mutex

	closed   bool
	closedMu sync.RWMutex
}

// New connects to NATS and ensures the stream exists.
func New(cfg Config, logger watermill.LoggerAdapter) (*Store, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	s := &Store{
		config:        cfg,
		logger:        logger,
		subjectPrefix: strings.ToLower(cfg.StreamName),
		subs:          make(map[uint64]*subscription),
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Info("NATS connection lost, reconnecting", watermill.LogFields{"error": err})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.fanOutError(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	s.js = js

	if err := s.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return s, nil
}

func (s *Store) ensureStream() error {
	_, err := s.js.StreamInfo(s.config.StreamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return err
	}

	_, err = s.js.AddStream(&nats.StreamConfig{
		Name:      s.config.StreamName,
		Subjects:  []string{s.subjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		Replicas:  s.config.Replicas,
		MaxAge:    s.config.MaxAge,
	})
	return err
}

// subjectFor maps a stream (topic) to a subject under the wildcard. Topic
// names may contain characters NATS treats as token separators, so they are
// sanitized here and the exact name travels in a header.
func (s *Store) subjectFor(stream string) string {
	return s.subjectPrefix + "." + sanitizeToken(stream)
}

func sanitizeToken(stream string) string {
	if stream == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(stream))
	for _, r := range stream {
		switch r {
		case '.', ' ', '*', '>':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Append publishes the event to the topic's subject and waits for the
// JetStream ack.
func (s *Store) Append(ctx context.Context, stream string, expected logstore.Version, ev logstore.Event) error {
	if s.isClosed() {
		return logstore.ErrStoreClosed
	}

	msg := &nats.Msg{
		Subject: s.subjectFor(stream),
		Data:    ev.Data,
		Header:  nats.Header{},
	}
	msg.Header.Set(hdrEventType, ev.Type)
	msg.Header.Set(hdrStream, stream)

	opts := []nats.PubOpt{nats.Context(ctx)}
	if expected != logstore.AnyVersion {
		opts = append(opts, nats.ExpectLastSequencePerSubject(uint64(expected)))
	}

	if _, err := s.js.PublishMsg(msg, opts...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}
	return nil
}

// SubscribeAll attaches an ordered, new-events-only consumer to the stream's
// wildcard subject. Events appended while an adapter is detached are gone for
// that adapter; the live feed has no replay.
func (s *Store) SubscribeAll(ctx context.Context) (logstore.Subscription, error) {
	if s.isClosed() {
		return nil, logstore.ErrStoreClosed
	}

	sub := &subscription{
		events: make(chan logstore.RecordedEvent, subscribeBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	natsSub, err := s.js.Subscribe(s.subjectPrefix+".>", func(m *nats.Msg) {
		meta, err := m.Metadata()
		if err != nil {
			s.logger.Error("Dropping event without JetStream metadata", err, nil)
			return
		}

		ev := logstore.RecordedEvent{
			Event: logstore.Event{
				Stream: m.Header.Get(hdrStream),
				Type:   m.Header.Get(hdrEventType),
				Data:   m.Data,
			},
			Sequence: meta.Sequence.Stream,
		}

		select {
		case sub.events <- ev:
		case <-sub.done:
		}
	}, nats.OrderedConsumer(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.subjectPrefix+".>", err)
	}
	sub.natsSub = natsSub

	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.subMu.Unlock()

	sub.onClose = func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}

	return sub, nil
}

// fanOutError surfaces an async NATS error to every live subscription so the
// consumer can tear down and resubscribe.
func (s *Store) fanOutError(err error) {
	if err == nil {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.errs <- err:
		default:
		}
	}
}

// Close drains open subscriptions and closes the connection.
func (s *Store) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	s.subMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	s.nc.Close()
	return nil
}

func (s *Store) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

type subscription struct {
	events  chan logstore.RecordedEvent
	errs    chan error
	done    chan struct{}
	natsSub *nats.Subscription
	onClose func()

	closeOnce sync.Once
}

func (s *subscription) Events() <-chan logstore.RecordedEvent { return s.events }
func (s *subscription) Err() <-chan error                     { return s.errs }

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// events is deliberately left open: the delivery callback may be
		// mid-send, and consumers stop on done/errs instead.
		close(s.done)
		if s.natsSub != nil {
			err = s.natsSub.Unsubscribe()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

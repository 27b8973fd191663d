package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/drblury/logcast/internal/runtime/envelope"
	loggingpkg "github.com/drblury/logcast/internal/runtime/logging"
	"github.com/drblury/logcast/logstore"
)

// Dispatcher delivers a decoded broadcast message to the local subscribers of
// a topic. The local registry is the default implementation; applications may
// plug in their own.
type Dispatcher interface {
	Dispatch(pubsubName, topic string, message any) error
}

// ListenerState reports the lifecycle phase of the subscription listener.
type ListenerState int32

const (
	ListenerUninitialized ListenerState = iota
	ListenerSubscribing
	ListenerActive
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerUninitialized:
		return "uninitialized"
	case ListenerSubscribing:
		return "subscribing"
	case ListenerActive:
		return "active"
	case ListenerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultResubscribeInitialInterval = 500 * time.Millisecond
	defaultResubscribeMaxInterval     = 30 * time.Second
	defaultResubscribeMultiplier      = 2.0
)

// listener consumes the all-streams feed of the log store and routes each
// event through decode, suppression, and local dispatch. It owns its
// goroutine from start until Stop.
type listener struct {
	store      logstore.Store
	dispatcher Dispatcher
	logger     loggingpkg.ServiceLogger
	metrics    *Metrics

	identity   string
	nodeName   string
	pubsubName string

	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64

	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}
}

func newListener(store logstore.Store, dispatcher Dispatcher, logger loggingpkg.ServiceLogger, metrics *Metrics, identity, nodeName, pubsubName string) *listener {
	return &listener{
		store:           store,
		dispatcher:      dispatcher,
		logger:          logger,
		metrics:         metrics,
		identity:        identity,
		nodeName:        nodeName,
		pubsubName:      pubsubName,
		initialInterval: defaultResubscribeInitialInterval,
		maxInterval:     defaultResubscribeMaxInterval,
		multiplier:      defaultResubscribeMultiplier,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

func (l *listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

func (l *listener) setState(s ListenerState) {
	l.state.Store(int32(s))
}

// start launches the listener goroutine. ctx bounds the SubscribeAll calls;
// Stop ends the loop.
func (l *listener) start(ctx context.Context) {
	go l.run(ctx)
}

// stop signals the loop to end and waits for it to finish.
func (l *listener) stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *listener) run(ctx context.Context) {
	defer close(l.doneCh)
	defer l.setState(ListenerStopped)

	interval := l.initialInterval
	established := false

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		l.setState(ListenerSubscribing)
		sub, err := l.store.SubscribeAll(ctx)
		if err != nil {
			l.logger.Error("Failed to subscribe to the log feed", err,
				loggingpkg.LogFields{"retry_in": interval.String()})
			if !l.sleep(interval) {
				return
			}
			interval = l.nextInterval(interval)
			continue
		}

		if established {
			l.metrics.recordResubscribe()
		}
		established = true
		interval = l.initialInterval
		l.setState(ListenerActive)
		l.logger.Info("Log feed subscription active", nil)

		if !l.consume(sub) {
			return
		}

		// Feed lost. Reattach from "now": events appended during the gap
		// are not replayed.
		if !l.sleep(interval) {
			return
		}
		interval = l.nextInterval(interval)
	}
}

// consume drains a live subscription. It returns false when the listener was
// stopped, true when the feed was lost and a resubscribe should follow.
func (l *listener) consume(sub logstore.Subscription) bool {
	defer sub.Close()

	for {
		select {
		case <-l.stopCh:
			return false
		case err := <-sub.Err():
			l.logger.Error("Log feed lost", err, nil)
			return true
		case ev, ok := <-sub.Events():
			if !ok {
				l.logger.Info("Log feed closed by the store", nil)
				return true
			}
			l.handle(ev)
		}
	}
}

// handle classifies a single log event and dispatches it locally when it
// survives the suppression checks.
func (l *listener) handle(ev logstore.RecordedEvent) {
	b, recognized, err := envelope.Decode(ev.Type, ev.Data)
	if !recognized {
		l.metrics.recordSkipped()
		return
	}
	if err != nil {
		l.metrics.recordDecodeFailure()
		l.logger.Error("Skipping undecodable log event", err,
			loggingpkg.LogFields{"stream": ev.Stream, "sequence": ev.Sequence})
		return
	}

	if b.Origin == l.identity {
		l.metrics.recordSuppressed("own_origin")
		return
	}
	if b.TargetNode != "" && b.TargetNode != l.nodeName {
		l.metrics.recordSuppressed("other_node")
		return
	}

	if err := l.dispatcher.Dispatch(l.pubsubName, ev.Stream, b.Message); err != nil {
		l.logger.Error("Local dispatch failed", err,
			loggingpkg.LogFields{"topic": ev.Stream, "sequence": ev.Sequence})
		return
	}
	l.metrics.recordDispatched(ev.Stream)
}

// sleep waits for d unless the listener is stopped first.
func (l *listener) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-l.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func (l *listener) nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * l.multiplier)
	if next > l.maxInterval {
		next = l.maxInterval
	}
	return next
}

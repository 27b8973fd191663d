// Package runtime implements the pubsub adapter: broadcasts are appended to a
// durable log and read back by every adapter instance sharing the store, so
// subscribers on all nodes observe the same message stream.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/logcast/internal/runtime/config"
	"github.com/drblury/logcast/internal/runtime/envelope"
	errspkg "github.com/drblury/logcast/internal/runtime/errors"
	"github.com/drblury/logcast/internal/runtime/ids"
	loggingpkg "github.com/drblury/logcast/internal/runtime/logging"
	"github.com/drblury/logcast/logstore"
)

const tracerName = "github.com/drblury/logcast"

// AdapterDependencies holds the optional collaborators of an Adapter. The
// Dispatcher is required; everything else has a default.
type AdapterDependencies struct {
	// Dispatcher receives every broadcast that survives suppression.
	Dispatcher Dispatcher

	// Store overrides the log store. When nil, the store named by
	// Config.LogStore is built through the registry.
	Store logstore.Store

	// Registerer receives the adapter's Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// TracerProvider for broadcast spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Adapter is one node-local pubsub instance backed by a shared log store.
// Create it with NewAdapter, call Start, and release it with Close.
type Adapter struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	identity   string
	nodeName   string
	pubsubName string

	store      logstore.Store
	ownsStore  bool
	dispatcher Dispatcher
	listener   *listener
	metrics    *Metrics
	tracer     trace.Tracer

	// appendMu serializes appends so the per-topic order observed by remote
	// nodes matches the order local callers issued them in.
	appendMu sync.Mutex

	metricsServer *http.Server

	started atomic.Bool
	closed  atomic.Bool
}

// NewAdapter validates the configuration and assembles an Adapter. The
// returned adapter is idle until Start is called.
func NewAdapter(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps AdapterDependencies) (*Adapter, error) {
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if deps.Dispatcher == nil {
		return nil, errspkg.ErrDispatcherRequired
	}
	if deps.Store == nil && conf.LogStore == "" {
		return nil, errspkg.ErrLogStoreRequired
	}

	log.Info("Creating pubsub adapter", loggingpkg.LogFields{
		"pubsub": conf.PubSubName,
		"config": conf,
	})

	store := deps.Store
	ownsStore := false
	if store == nil {
		built, err := logstore.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, fmt.Errorf("logcast: build log store: %w", err)
		}
		store = built
		ownsStore = true
	}

	nodeName := conf.NodeName
	if nodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			if ownsStore {
				store.Close()
			}
			return nil, fmt.Errorf("logcast: resolve node name: %w", err)
		}
		nodeName = host
	}

	tracerProvider := deps.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	a := &Adapter{
		Conf:       conf,
		Logger:     log,
		identity:   ids.NewIdentity(),
		nodeName:   nodeName,
		pubsubName: conf.PubSubName,
		store:      store,
		ownsStore:  ownsStore,
		dispatcher: deps.Dispatcher,
		metrics:    NewMetrics(deps.Registerer),
		tracer:     tracerProvider.Tracer(tracerName),
	}

	if err := a.metrics.Register(); err != nil {
		if ownsStore {
			store.Close()
		}
		return nil, fmt.Errorf("logcast: register metrics: %w", err)
	}

	a.listener = newListener(store, deps.Dispatcher, log, a.metrics, a.identity, nodeName, conf.PubSubName)
	if conf.ResubscribeInitialInterval > 0 {
		a.listener.initialInterval = conf.ResubscribeInitialInterval
	}
	if conf.ResubscribeMaxInterval > 0 {
		a.listener.maxInterval = conf.ResubscribeMaxInterval
	}
	if conf.ResubscribeMultiplier >= 1 {
		a.listener.multiplier = conf.ResubscribeMultiplier
	}

	return a, nil
}

// Identity returns the unique id of this adapter instance. Events carrying
// this origin are suppressed on read-back.
func (a *Adapter) Identity() string {
	return a.identity
}

// NodeName returns the name other nodes use to target this one with
// DirectBroadcast.
func (a *Adapter) NodeName() string {
	return a.nodeName
}

// ListenerState reports the current phase of the subscription listener.
func (a *Adapter) ListenerState() ListenerState {
	return a.listener.State()
}

// Start attaches the subscription listener to the log feed and, when enabled,
// exposes the metrics endpoint. It returns immediately; the listener runs
// until Close.
func (a *Adapter) Start(ctx context.Context) error {
	if a.closed.Load() {
		return errspkg.ErrAdapterClosed
	}
	if !a.started.CompareAndSwap(false, true) {
		return nil
	}

	a.listener.start(ctx)
	a.startMetricsServer()
	return nil
}

// Broadcast appends message to the log under topic. Every node sharing the
// store, except this adapter instance, dispatches it to its local
// subscribers of topic.
func (a *Adapter) Broadcast(ctx context.Context, topic string, message any) error {
	return a.publish(ctx, "broadcast", topic, "", message)
}

// DirectBroadcast appends message like Broadcast but tags it with a target
// node: only subscribers on that node receive it. The target does not need
// to exist; a mistargeted message is suppressed everywhere.
func (a *Adapter) DirectBroadcast(ctx context.Context, topic, targetNode string, message any) error {
	if targetNode == "" {
		return errspkg.ErrTargetNodeRequired
	}
	return a.publish(ctx, "direct_broadcast", topic, targetNode, message)
}

func (a *Adapter) publish(ctx context.Context, kind, topic, targetNode string, message any) error {
	if a.closed.Load() {
		return errspkg.ErrAdapterClosed
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	ctx, span := a.tracer.Start(ctx, "logcast.broadcast",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("logcast.kind", kind),
		))
	defer span.End()

	data, err := envelope.Encode(a.identity, targetNode, message)
	if err != nil {
		a.metrics.recordAppendFailure(kind)
		span.RecordError(err)
		return err
	}

	ev := logstore.Event{
		Stream: topic,
		Type:   envelope.EventType,
		Data:   data,
	}

	a.appendMu.Lock()
	err = a.store.Append(ctx, topic, logstore.AnyVersion, ev)
	a.appendMu.Unlock()
	if err != nil {
		a.metrics.recordAppendFailure(kind)
		span.RecordError(err)
		a.Logger.Error("Append to the log failed", err,
			loggingpkg.LogFields{"topic": topic, "kind": kind})
		return &errspkg.AppendError{Topic: topic, Err: err}
	}

	a.metrics.recordBroadcast(kind)
	return nil
}

// Publish composes a broadcast with own-node delivery: the message is
// appended to the log for the other nodes and then handed to dispatcher for
// this node's own subscribers. The listener suppresses the read-back of the
// append, so subscribers on every node, this one included, see the message
// exactly once. A failed append delivers nothing locally.
func Publish(ctx context.Context, a *Adapter, dispatcher Dispatcher, topic string, message any) error {
	if dispatcher == nil {
		return errspkg.ErrDispatcherRequired
	}
	if err := a.Broadcast(ctx, topic, message); err != nil {
		return err
	}
	return dispatcher.Dispatch(a.pubsubName, topic, message)
}

// Close stops the listener, shuts down the metrics endpoint, and closes the
// store if the adapter built it. Safe to call more than once.
func (a *Adapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	if a.started.Load() {
		a.listener.stop()
	} else {
		a.listener.setState(ListenerStopped)
	}

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("Failed to shut down metrics server", err, nil)
		}
	}

	if a.ownsStore {
		return a.store.Close()
	}
	return nil
}

func (a *Adapter) startMetricsServer() {
	if !a.Conf.MetricsEnabled {
		return
	}

	port := a.Conf.MetricsPort
	if port == 0 {
		port = 9090
	}

	handler := promhttp.Handler()
	if gatherer, ok := a.metrics.registerer.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := fmt.Sprintf(":%d", port)
	a.metricsServer = &http.Server{Addr: addr, Handler: mux}

	a.Logger.Info("Starting metrics server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Metrics server stopped", err, loggingpkg.LogFields{"address": addr})
		}
	}()
}

package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks adapter activity: appends on the publish side, and the
// dispatch/suppress/skip split on the subscription side.
type Metrics struct {
	broadcastsTotal     *prometheus.CounterVec
	appendFailuresTotal *prometheus.CounterVec
	dispatchedTotal     *prometheus.CounterVec
	suppressedTotal     *prometheus.CounterVec
	skippedTotal        prometheus.Counter
	decodeFailuresTotal prometheus.Counter
	resubscribesTotal   prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logcast",
			Subsystem: "adapter",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "logcast",
			Subsystem: "adapter",
			Name:      name,
			Help:      help,
		},
	)
}

// NewMetrics creates the adapter metrics collectors. Pass nil to use the
// default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:          registerer,
		broadcastsTotal:     newCounterVec("broadcasts_total", "Total number of messages appended to the log", []string{"kind"}),
		appendFailuresTotal: newCounterVec("append_failures_total", "Total number of appends rejected by the log store", []string{"kind"}),
		dispatchedTotal:     newCounterVec("dispatched_total", "Total number of log events dispatched to local subscribers", []string{"topic"}),
		suppressedTotal:     newCounterVec("suppressed_total", "Total number of log events suppressed before dispatch", []string{"reason"}),
		skippedTotal:        newCounter("skipped_unrecognized_total", "Total number of log events skipped because their type tag was not recognized"),
		decodeFailuresTotal: newCounter("decode_failures_total", "Total number of recognized log events that failed to decode"),
		resubscribesTotal:   newCounter("resubscribes_total", "Total number of times the live feed was re-established after being lost"),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.broadcastsTotal,
		m.appendFailuresTotal,
		m.dispatchedTotal,
		m.suppressedTotal,
		m.skippedTotal,
		m.decodeFailuresTotal,
		m.resubscribesTotal,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordBroadcast(kind string)     { m.broadcastsTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) recordAppendFailure(kind string) { m.appendFailuresTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) recordDispatched(topic string)   { m.dispatchedTotal.WithLabelValues(topic).Inc() }
func (m *Metrics) recordSuppressed(reason string)  { m.suppressedTotal.WithLabelValues(reason).Inc() }
func (m *Metrics) recordSkipped()                  { m.skippedTotal.Inc() }
func (m *Metrics) recordDecodeFailure()            { m.decodeFailuresTotal.Inc() }
func (m *Metrics) recordResubscribe()              { m.resubscribesTotal.Inc() }

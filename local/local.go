// Package local provides the in-process half of the pubsub: a subscriber
// registry with synchronous dispatch. The adapter itself never owns
// registrations; it only asks a Dispatcher to deliver. This implementation is
// the batteries-included default; any other registry that satisfies the
// adapter's Dispatcher seam can be used instead.
package local

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/drblury/logcast/internal/runtime/logging"
)

// Subscriber receives messages dispatched to a topic it registered for.
// Subscribers run synchronously on the dispatching goroutine.
type Subscriber func(topic string, message any)

// Metadata is opaque registration metadata kept alongside a subscriber.
type Metadata map[string]any

type registration struct {
	id     uint64
	fn     Subscriber
	meta   Metadata
	closed atomic.Bool
}

// Registry is a thread-safe topic → subscriber table.
//
// Duplicate registrations are real registrations: registering the same
// function twice on one topic yields two deliveries per message.
type Registry struct {
	logger logging.ServiceLogger

	mu     sync.RWMutex
	topics map[string][]*registration
	nextID atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.ServiceLogger) *Registry {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Registry{
		logger: logger,
		topics: make(map[string][]*registration),
	}
}

// Register adds a subscriber for a topic and returns an idempotent cancel
// function.
func (r *Registry) Register(topic string, fn Subscriber, meta Metadata) (cancel func()) {
	reg := &registration{
		id:   r.nextID.Add(1),
		fn:   fn,
		meta: meta,
	}

	r.mu.Lock()
	r.topics[topic] = append(r.topics[topic], reg)
	r.mu.Unlock()

	return func() {
		if reg.closed.CompareAndSwap(false, true) {
			r.unregister(topic, reg.id)
		}
	}
}

func (r *Registry) unregister(topic string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.topics[topic]
	for i, reg := range regs {
		if reg.id == id {
			r.topics[topic] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.topics[topic]) == 0 {
		delete(r.topics, topic)
	}
}

// Subscribers returns the number of current registrations for a topic.
func (r *Registry) Subscribers(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// MetadataFor enumerates the metadata of every current registration for a
// topic, in registration order.
func (r *Registry) MetadataFor(topic string) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]Metadata, 0, len(r.topics[topic]))
	for _, reg := range r.topics[topic] {
		metas = append(metas, reg.meta)
	}
	return metas
}

// Dispatch delivers message synchronously to every current subscriber of
// topic. A panicking subscriber is isolated and logged; the remaining
// subscribers still receive the message.
func (r *Registry) Dispatch(pubsubName, topic string, message any) error {
	r.mu.RLock()
	regs := make([]*registration, len(r.topics[topic]))
	copy(regs, r.topics[topic])
	r.mu.RUnlock()

	for _, reg := range regs {
		r.deliver(pubsubName, topic, reg, message)
	}
	return nil
}

func (r *Registry) deliver(pubsubName, topic string, reg *registration, message any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Subscriber panicked during dispatch",
				fmt.Errorf("panic: %v", rec),
				logging.LogFields{"pubsub": pubsubName, "topic": topic})
		}
	}()

	reg.fn(topic, message)
}

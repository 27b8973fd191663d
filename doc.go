// Package logcast is a distributed pubsub adapter that uses a durable
// append-only log as its only cross-node transport. Every Broadcast is
// appended to a log stream named after its topic; every adapter instance
// sharing the store consumes a live all-streams feed, decodes each event, and
// hands it to the local subscribers of that topic. No direct node-to-node
// connections exist: a log store reachable by all nodes is the entire
// transport.
//
// An Adapter suppresses its own events on read-back: delivery to the
// broadcasting node's own subscribers is the surrounding pubsub layer's job,
// done synchronously around Broadcast (the Publish helper composes the two),
// so subscribers everywhere see each message exactly once. DirectBroadcast
// tags an event with a target node name so only that node's subscribers
// receive it. Delivery is
// at-least-once from the moment the subscription is active; there is no
// history replay, so a node that attaches late or reattaches after losing
// the feed simply misses the gap.
//
// # Log stores
//
// Three backends ship out of the box:
//   - channel: in-memory Go channels for testing and single-process clusters
//   - nats-jetstream: durable streams with per-subject expected sequences
//   - kafka: a single-partition topic as a totally ordered shared log
//
// Backends register themselves through the logstore registry; import them
// via the aggregator:
//
//	import _ "github.com/drblury/logcast/logstore/backends"
//
// A custom backend only needs to implement logstore.Store and register a
// Builder.
//
// # Quick start
//
// Fill a Config, create the local registry, build the adapter, register
// subscribers, and call Start:
//
//	registry := logcast.NewLocalRegistry(logger)
//	adapter, err := logcast.NewAdapter(ctx, conf, logger, logcast.AdapterDependencies{
//		Dispatcher: registry,
//	})
//	if err != nil { ... }
//	defer adapter.Close()
//
//	registry.Register("chat.general", func(topic string, msg any) { ... }, nil)
//	adapter.Start(ctx)
//	logcast.Publish(ctx, adapter, registry, "chat.general", map[string]any{"text": "hello"})
//
// Messages are serialized with msgpack inside a printable-safe JSON envelope,
// so any value msgpack can represent survives the round trip even through
// JSON-normalizing stores.
package logcast

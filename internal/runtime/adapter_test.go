package runtime

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/logcast/internal/runtime/config"
	errspkg "github.com/drblury/logcast/internal/runtime/errors"
	"github.com/drblury/logcast/internal/runtime/logging"
	"github.com/drblury/logcast/logstore"
	"github.com/drblury/logcast/logstore/channel"
)

func newTestAdapter(t *testing.T, store logstore.Store, nodeName string) (*Adapter, *recordingDispatcher) {
	t.Helper()

	dispatcher := newRecordingDispatcher()
	conf := &configpkg.Config{
		PubSubName:                 "chat",
		NodeName:                   nodeName,
		ResubscribeInitialInterval: 5 * time.Millisecond,
		ResubscribeMaxInterval:     20 * time.Millisecond,
	}

	a, err := NewAdapter(context.Background(), conf, logging.NewNopServiceLogger(), AdapterDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Close() })

	require.Eventually(t, func() bool {
		return a.ListenerState() == ListenerActive
	}, time.Second, 5*time.Millisecond, "listener never became active")

	return a, dispatcher
}

func TestNewAdapterValidation(t *testing.T) {
	log := logging.NewNopServiceLogger()
	store := channel.New(nil)
	defer store.Close()

	_, err := NewAdapter(context.Background(), &configpkg.Config{}, log, AdapterDependencies{
		Store:      store,
		Dispatcher: newRecordingDispatcher(),
	})
	assert.ErrorIs(t, err, errspkg.ErrPubSubNameRequired)

	_, err = NewAdapter(context.Background(), &configpkg.Config{PubSubName: "chat"}, log, AdapterDependencies{
		Store: store,
	})
	assert.ErrorIs(t, err, errspkg.ErrDispatcherRequired)

	_, err = NewAdapter(context.Background(), &configpkg.Config{PubSubName: "chat"}, log, AdapterDependencies{
		Dispatcher: newRecordingDispatcher(),
	})
	assert.ErrorIs(t, err, errspkg.ErrLogStoreRequired)
}

func TestNodeNameDefaultsToHostname(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, err := NewAdapter(context.Background(), &configpkg.Config{PubSubName: "chat"},
		logging.NewNopServiceLogger(), AdapterDependencies{
			Store:      store,
			Dispatcher: newRecordingDispatcher(),
			Registerer: prometheus.NewRegistry(),
		})
	require.NoError(t, err)
	defer a.Close()

	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, host, a.NodeName())
	assert.NotEmpty(t, a.Identity())
}

func TestBroadcastReachesOtherAdapters(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, dispatcherA := newTestAdapter(t, store, "node-a")
	_, dispatcherB := newTestAdapter(t, store, "node-b")

	require.NoError(t, a.Broadcast(context.Background(), "updates", map[string]any{"text": "hi"}))

	call := dispatcherB.expectCall(t)
	assert.Equal(t, "chat", call.pubsub)
	assert.Equal(t, "updates", call.topic)
	assert.Equal(t, map[string]any{"text": "hi"}, call.message)

	// The producing instance never re-dispatches its own broadcast.
	dispatcherA.expectNoCall(t)
}

func TestDirectBroadcastTargeting(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, _ := newTestAdapter(t, store, "node-a")
	_, dispatcherB := newTestAdapter(t, store, "node-b")
	_, dispatcherC := newTestAdapter(t, store, "node-c")

	require.NoError(t, a.DirectBroadcast(context.Background(), "updates", "node-b", "only for b"))

	call := dispatcherB.expectCall(t)
	assert.Equal(t, "only for b", call.message)
	dispatcherC.expectNoCall(t)
}

func TestDirectBroadcastToUnknownNodeIsSuppressedEverywhere(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, dispatcherA := newTestAdapter(t, store, "node-a")
	_, dispatcherB := newTestAdapter(t, store, "node-b")

	require.NoError(t, a.DirectBroadcast(context.Background(), "updates", "node-ghost", "lost"))

	dispatcherA.expectNoCall(t)
	dispatcherB.expectNoCall(t)
}

func TestBroadcastOrderingPerTopic(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, _ := newTestAdapter(t, store, "node-a")
	_, dispatcherB := newTestAdapter(t, store, "node-b")

	require.NoError(t, a.Broadcast(context.Background(), "updates", "first"))
	require.NoError(t, a.Broadcast(context.Background(), "updates", "second"))

	assert.Equal(t, "first", dispatcherB.expectCall(t).message)
	assert.Equal(t, "second", dispatcherB.expectCall(t).message)
}

func TestPublishDeliversOnEveryNodeExactlyOnce(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, dispatcherA := newTestAdapter(t, store, "node-a")
	_, dispatcherB := newTestAdapter(t, store, "node-b")

	require.NoError(t, Publish(context.Background(), a, dispatcherA, "updates", "for everyone"))

	// The origin node's subscribers get the synchronous local delivery.
	callA := dispatcherA.expectCall(t)
	assert.Equal(t, "chat", callA.pubsub)
	assert.Equal(t, "updates", callA.topic)
	assert.Equal(t, "for everyone", callA.message)

	// The remote node gets it through the log.
	callB := dispatcherB.expectCall(t)
	assert.Equal(t, "for everyone", callB.message)

	// Exactly once on both sides: the read-back on the origin is suppressed.
	dispatcherA.expectNoCall(t)
	dispatcherB.expectNoCall(t)
}

func TestPublishSkipsLocalDeliveryOnAppendFailure(t *testing.T) {
	store := &failingStore{appendErr: errors.New("disk full")}
	a, dispatcher := newTestAdapter(t, store, "node-a")

	err := Publish(context.Background(), a, dispatcher, "updates", "lost")
	require.Error(t, err)

	var appendErr *errspkg.AppendError
	assert.ErrorAs(t, err, &appendErr)
	dispatcher.expectNoCall(t)
}

func TestPublishRequiresDispatcher(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, _ := newTestAdapter(t, store, "node-a")
	assert.ErrorIs(t, Publish(context.Background(), a, nil, "updates", "msg"), errspkg.ErrDispatcherRequired)
}

func TestBroadcastInputValidation(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, _ := newTestAdapter(t, store, "node-a")

	assert.ErrorIs(t, a.Broadcast(context.Background(), "", "msg"), errspkg.ErrTopicRequired)
	assert.ErrorIs(t, a.DirectBroadcast(context.Background(), "updates", "", "msg"), errspkg.ErrTargetNodeRequired)
}

type failingStore struct {
	fakeStore
	appendErr error
}

func (f *failingStore) Append(ctx context.Context, stream string, expected logstore.Version, ev logstore.Event) error {
	return f.appendErr
}

func TestBroadcastSurfacesAppendFailure(t *testing.T) {
	store := &failingStore{appendErr: errors.New("disk full")}
	a, _ := newTestAdapter(t, store, "node-a")

	err := a.Broadcast(context.Background(), "updates", "msg")
	require.Error(t, err)

	var appendErr *errspkg.AppendError
	require.ErrorAs(t, err, &appendErr)
	assert.Equal(t, "updates", appendErr.Topic)
	assert.ErrorIs(t, err, store.appendErr)
}

func TestClosedAdapterRejectsBroadcasts(t *testing.T) {
	store := channel.New(nil)
	defer store.Close()

	a, _ := newTestAdapter(t, store, "node-a")
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Broadcast(context.Background(), "updates", "msg"), errspkg.ErrAdapterClosed)
	assert.Equal(t, ListenerStopped, a.ListenerState())

	// Close is idempotent.
	assert.NoError(t, a.Close())
}

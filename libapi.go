package logcast

import (
	runtimepkg "github.com/drblury/logcast/internal/runtime"
	configpkg "github.com/drblury/logcast/internal/runtime/config"
	"github.com/drblury/logcast/internal/runtime/envelope"
	errspkg "github.com/drblury/logcast/internal/runtime/errors"
	idspkg "github.com/drblury/logcast/internal/runtime/ids"
	jsoncodec "github.com/drblury/logcast/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/logcast/internal/runtime/logging"
	"github.com/drblury/logcast/local"
	storepkg "github.com/drblury/logcast/logstore"
)

type (
	Config              = configpkg.Config
	Adapter             = runtimepkg.Adapter
	AdapterDependencies = runtimepkg.AdapterDependencies
	Dispatcher          = runtimepkg.Dispatcher
	ListenerState       = runtimepkg.ListenerState
	Metrics             = runtimepkg.Metrics

	Broadcast = envelope.Broadcast

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Local subscriber registry
	LocalRegistry = local.Registry
	Subscriber    = local.Subscriber
	Metadata      = local.Metadata

	// Log store boundary (for custom backends)
	LogStore          = storepkg.Store
	LogEvent          = storepkg.Event
	RecordedEvent     = storepkg.RecordedEvent
	LogSubscription   = storepkg.Subscription
	LogStoreBuilder   = storepkg.Builder
	LogStoreConfig    = storepkg.Config
	StoreCapabilities = storepkg.Capabilities

	AppendError = errspkg.AppendError
)

var (
	NewAdapter       = runtimepkg.NewAdapter
	NewMetrics       = runtimepkg.NewMetrics
	NewLocalRegistry = local.NewRegistry

	// Publish broadcasts and then delivers to the node's own subscribers, so
	// the message arrives exactly once everywhere. Use it when the local
	// pubsub layer does not already dispatch around Broadcast itself.
	Publish = runtimepkg.Publish

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	// Log store registry. Import individual backends via:
	//   _ "github.com/drblury/logcast/logstore/backends"
	DefaultLogStoreRegistry = storepkg.DefaultRegistry
	RegisterLogStore        = storepkg.Register
	BuildLogStore           = storepkg.Build
	GetStoreCapabilities    = storepkg.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	NewIdentity = idspkg.NewIdentity

	ErrLogStoreRequired   = errspkg.ErrLogStoreRequired
	ErrPubSubNameRequired = errspkg.ErrPubSubNameRequired
	ErrDispatcherRequired = errspkg.ErrDispatcherRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrTargetNodeRequired = errspkg.ErrTargetNodeRequired
	ErrAdapterClosed      = errspkg.ErrAdapterClosed

	ErrVersionConflict         = storepkg.ErrVersionConflict
	ErrVersionCheckUnsupported = storepkg.ErrVersionCheckUnsupported
	ErrStoreClosed             = storepkg.ErrStoreClosed
)

// BroadcastEventType is the schema tag carried by every event the adapter
// appends. Events with any other tag are skipped on read-back, so the log
// store may be shared with unrelated writers.
const BroadcastEventType = envelope.EventType

// Listener lifecycle states, as reported by Adapter.ListenerState.
const (
	ListenerUninitialized = runtimepkg.ListenerUninitialized
	ListenerSubscribing   = runtimepkg.ListenerSubscribing
	ListenerActive        = runtimepkg.ListenerActive
	ListenerStopped       = runtimepkg.ListenerStopped
)

// AnyVersion disables the expected-version check on Append.
const AnyVersion = storepkg.AnyVersion

// Package errors defines the error values surfaced by the adapter.
//
// Only append failures and configuration problems are visible to broadcast
// callers. Decode failures and feed loss are handled inside the subscription
// listener and reported through logging and metrics instead.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrLogStoreRequired   = sterrors.New("logcast: log store is required")
	ErrPubSubNameRequired = sterrors.New("logcast: pubsub name is required")
	ErrDispatcherRequired = sterrors.New("logcast: local dispatcher is required")
	ErrTopicRequired      = sterrors.New("logcast: topic is required")
	ErrTargetNodeRequired = sterrors.New("logcast: target node is required")
	ErrAdapterClosed      = sterrors.New("logcast: adapter is closed")
)

// AppendError reports that the log store rejected or could not perform an
// append. The adapter never retries internally; retrying is the caller's
// decision and may produce a duplicate delivery under at-least-once semantics.
type AppendError struct {
	Topic string
	Err   error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("logcast: append to stream %q failed: %v", e.Topic, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}

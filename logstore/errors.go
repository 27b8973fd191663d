package logstore

import "errors"

var (
	// ErrVersionConflict is returned by Append when a non-negative expected
	// version does not match the stream's current version.
	ErrVersionConflict = errors.New("logstore: expected version conflict")

	// ErrVersionCheckUnsupported is returned by backends that cannot enforce
	// a non-negative expected version.
	ErrVersionCheckUnsupported = errors.New("logstore: expected version check not supported by this backend")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("logstore: store is closed")
)

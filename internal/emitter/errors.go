package emitter

import "errors"

// Engine error types.
var (
	// ErrStaleSequence marks an event whose sequence number is not
	// strictly greater than the last processed one. Stale events are
	// discarded, never reordered or retried.
	ErrStaleSequence = errors.New("stale or duplicate sequence number")
)

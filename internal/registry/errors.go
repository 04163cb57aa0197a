package registry

import "errors"

// Registry error types.
var (
	ErrDeviceBusy = errors.New("device is already bound to another session")
	ErrNotBound   = errors.New("device is not bound")
)

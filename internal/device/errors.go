package device

import "errors"

// Backend and handle errors.
var (
	ErrUnknownKey      = errors.New("unknown device key name")
	ErrDeviceDestroyed = errors.New("device already destroyed")
)

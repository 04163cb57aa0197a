package interfaces

import "errors"

// Common interface errors used across components.
var (
	ErrBackendUnavailable = errors.New("device backend unavailable")
	ErrProfileNotFound    = errors.New("keymap profile not found")
)

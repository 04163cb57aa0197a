package types

import "errors"

// Validation errors shared by wire message consumers.
var (
	ErrInvalidEventType = errors.New("event type must be 'keydown' or 'keyup'")
	ErrInvalidKeyCode   = errors.New("key code must be in range 0-255")
	ErrInvalidPhase     = errors.New("composition phase must be 'start', 'update' or 'end'")
)

package client

import "errors"

var (
	// ErrNotConnected is returned by Send while the session is not in
	// the Connected state. Events are dropped, never queued.
	ErrNotConnected = errors.New("session not connected")

	// ErrAlreadyStarted is returned by Start on a session that has
	// already left the Idle state.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrSessionRejected is the terminal failure for a server-side
	// connect rejection, for example a busy device.
	ErrSessionRejected = errors.New("session rejected by server")

	// ErrReconnectExhausted is the terminal failure after the reconnect
	// attempt cap is exceeded.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

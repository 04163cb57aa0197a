package server

import "errors"

var (
	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrWriteTimeout is returned when the write buffer stays full too long.
	ErrWriteTimeout = errors.New("write timeout")

	// ErrInvalidJSON is returned when a message cannot be marshaled.
	ErrInvalidJSON = errors.New("invalid JSON message")
)

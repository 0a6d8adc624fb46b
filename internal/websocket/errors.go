package websocket

import "errors"

var (
	// ErrConnectionClosed is returned for writes after Close.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrInvalidJSON indicates an outbound payload failed to marshal.
	ErrInvalidJSON = errors.New("invalid JSON payload")

	// ErrWriteTimeout indicates the write buffer stayed full past the timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")
)

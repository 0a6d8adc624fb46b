package interfaces

import "mentorhub/pkg/types"

// Connection is one live client connection. Implementations must make
// WriteJSON safe for concurrent callers (single-writer pattern) and Close
// idempotent.
type Connection interface {
	// GetID returns the process-unique connection id.
	GetID() string

	// GetIdentity returns the identity resolved at handshake time.
	GetIdentity() types.Identity

	// WriteJSON sends a JSON payload to the client (thread-safe).
	WriteJSON(v any) error

	// Close closes the connection and releases its resources.
	Close() error
}

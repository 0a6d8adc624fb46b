package chat

import "errors"

var (
	// ErrNilDatabase indicates the store was constructed without a database.
	ErrNilDatabase = errors.New("database cannot be nil")
)

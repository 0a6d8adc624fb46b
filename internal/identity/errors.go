package identity

import "errors"

var (
	// ErrEmptyToken indicates the handshake carried no credential at all.
	ErrEmptyToken = errors.New("credential token is empty")

	// ErrEmptySecret indicates the verifier was constructed without a
	// signing secret.
	ErrEmptySecret = errors.New("signing secret cannot be empty")
)

package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrSessionMismatch   = errors.New("message belongs to another session")
	ErrInvalidCredential = errors.New("invalid or expired credential")
)

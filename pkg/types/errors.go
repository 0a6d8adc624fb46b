package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidAccountID = errors.New("account ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidSessionID = errors.New("session ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRole      = errors.New("role must be one of student, mentor, company, admin")
	ErrEmptyMessage     = errors.New("message text cannot be empty")
	ErrMessageTooLong   = errors.New("message text exceeds 2000 characters")
)

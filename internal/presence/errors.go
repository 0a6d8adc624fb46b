package presence

import "errors"

var (
	ErrNilMember = errors.New("presence member and its connection cannot be nil")
)

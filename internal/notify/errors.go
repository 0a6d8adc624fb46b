package notify

import "errors"

var (
	// ErrNilBroadcaster indicates the dispatcher was constructed without a
	// channel broadcaster.
	ErrNilBroadcaster = errors.New("broadcaster cannot be nil")

	// ErrNotRunning is returned by Publish before Start or after Stop.
	ErrNotRunning = errors.New("dispatcher is not running")

	// ErrQueueFull is returned by Publish when the intake buffer is saturated.
	ErrQueueFull = errors.New("notification queue is full")

	// ErrUnknownAudience indicates a dispatch request named an audience the
	// dispatcher does not route.
	ErrUnknownAudience = errors.New("unknown notification audience")
)

package devicecomm

import "errors"

// Package errors. Wrap with fmt.Errorf("%w: detail", Err...) and check
// with errors.Is.
var (
	// ErrTimeout indicates a controller did not respond within the
	// command timeout.
	ErrTimeout = errors.New("devicecomm: command timed out")

	// ErrQueued indicates the broker is unreachable and the command was
	// queued for delivery on reconnect. Not a failure: core state is
	// authoritative and the controller resynchronises when it returns.
	ErrQueued = errors.New("devicecomm: command queued for delivery")

	// ErrQueueFull indicates the offline queue has reached capacity.
	ErrQueueFull = errors.New("devicecomm: offline queue full")

	// ErrUnknownDevice indicates a message arrived for a controller the
	// service has never seen and cannot attribute.
	ErrUnknownDevice = errors.New("devicecomm: unknown device")

	// ErrClosed indicates the service has been stopped.
	ErrClosed = errors.New("devicecomm: service closed")
)

package doorcontrol

import "errors"

// Package errors. Wrap with fmt.Errorf("%w: detail", Err...) and check
// with errors.Is.
var (
	// ErrInvalidAction indicates an unrecognised control action.
	ErrInvalidAction = errors.New("doorcontrol: invalid action")

	// ErrInvalidCommand indicates a command missing required fields.
	ErrInvalidCommand = errors.New("doorcontrol: invalid command")
)

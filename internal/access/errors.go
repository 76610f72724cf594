package access

import "errors"

// Domain errors for the access package.
//
// These errors can be checked using errors.Is() for error handling.
var (
	// ErrNotFound is returned when an access ID or credential does not resolve.
	ErrNotFound = errors.New("access: not found")

	// ErrExists is returned when creating an access with an ID that already exists.
	ErrExists = errors.New("access: already exists")

	// ErrInvalidAccess is returned when access validation fails.
	ErrInvalidAccess = errors.New("access: invalid")

	// ErrInvalidTransition is returned for illegal lifecycle transitions.
	ErrInvalidTransition = errors.New("access: invalid transition")

	// ErrUsageExhausted is returned when the atomic usage increment finds
	// the counter already at the maximum.
	ErrUsageExhausted = errors.New("access: usage exhausted")
)

package validation

import "errors"

// Package errors. Wrap with fmt.Errorf("%w: detail", Err...) and check
// with errors.Is.
var (
	// ErrInternal indicates validation could not complete because of an
	// infrastructure fault. The attempt is still logged as unknown_error
	// on a best-effort basis.
	ErrInternal = errors.New("validation: internal error")
)

package credential

import "errors"

// Sentinel errors for credential handling.
var (
	// ErrInvalidPIN indicates a malformed PIN (wrong length or non-digits).
	ErrInvalidPIN = errors.New("credential: invalid PIN")

	// ErrExpired indicates the credential's expiry time has passed.
	ErrExpired = errors.New("credential: expired")
)

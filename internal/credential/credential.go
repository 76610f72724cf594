// Package credential implements PIN credential handling for Doorman Core.
//
// PINs are short numeric secrets typed at a door keypad. They are compared
// in constant time and never written to logs in clear form: String(),
// MarshalJSON, and Masked() all emit the masked representation.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PIN length bounds. Keypads in the field accept 4 to 8 digits.
const (
	MinLength = 4
	MaxLength = 8
)

// maskVisibleDigits is how many trailing digits Masked() leaves readable.
const maskVisibleDigits = 2

// digitByteLimit is the largest random byte usable for digit mapping.
// 256 is not a multiple of 10, so bytes 250-255 are rejected to keep
// every digit equally likely.
const digitByteLimit = 250

// PIN is a numeric door credential.
//
// The zero value is an empty, invalid PIN. Construct with New or Generate.
type PIN struct {
	value string
}

// New creates a PIN from a raw digit string.
//
// Returns:
//   - PIN: The validated credential
//   - error: ErrInvalidPIN if the string is not 4-8 digits
func New(raw string) (PIN, error) {
	if err := Validate(raw); err != nil {
		return PIN{}, err
	}
	return PIN{value: raw}, nil
}

// Generate creates a random PIN of the given length using crypto/rand.
//
// Parameters:
//   - length: Desired digit count (must be within MinLength..MaxLength)
func Generate(length int) (PIN, error) {
	if length < MinLength || length > MaxLength {
		return PIN{}, fmt.Errorf("%w: length %d outside %d-%d", ErrInvalidPIN, length, MinLength, MaxLength)
	}

	var sb strings.Builder
	sb.Grow(length)
	buf := make([]byte, length)
	for sb.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return PIN{}, fmt.Errorf("credential: generate: %w", err)
		}
		for _, b := range buf {
			d, ok := digitFromByte(b)
			if !ok {
				continue
			}
			sb.WriteByte(d)
			if sb.Len() == length {
				break
			}
		}
	}

	return PIN{value: sb.String()}, nil
}

// digitFromByte maps a random byte to a decimal digit character,
// rejecting bytes at or above digitByteLimit.
func digitFromByte(b byte) (byte, bool) {
	if b >= digitByteLimit {
		return 0, false
	}
	return '0' + b%10, true
}

// Validate checks that a raw string is a well-formed PIN: digits only,
// within the length bounds.
func Validate(raw string) error {
	if len(raw) < MinLength || len(raw) > MaxLength {
		return fmt.Errorf("%w: must be %d-%d digits", ErrInvalidPIN, MinLength, MaxLength)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return fmt.Errorf("%w: must contain only digits", ErrInvalidPIN)
		}
	}
	return nil
}

// Equal compares two PINs in constant time.
//
// Length leaks through the comparison, which is acceptable: the keypad
// already reveals digit count to an observer.
func (p PIN) Equal(other PIN) bool {
	if len(p.value) != len(other.value) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.value), []byte(other.value)) == 1
}

// EqualString compares the PIN against a raw digit string in constant time.
func (p PIN) EqualString(raw string) bool {
	if len(p.value) != len(raw) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.value), []byte(raw)) == 1
}

// IsZero reports whether the PIN is unset.
func (p PIN) IsZero() bool {
	return p.value == ""
}

// Value returns the clear PIN digits.
//
// Only the storage layer and the keypad comparison path should call
// this; everything else works with the masked form.
func (p PIN) Value() string {
	return p.value
}

// Masked returns the PIN with all but the last two digits replaced by
// asterisks, e.g. "******42". Safe for logs and API responses.
func (p PIN) Masked() string {
	if p.value == "" {
		return ""
	}
	n := len(p.value)
	visible := maskVisibleDigits
	if visible > n {
		visible = n
	}
	return strings.Repeat("*", n-visible) + p.value[n-visible:]
}

// String implements fmt.Stringer with the masked form so that PINs
// never leak through %v/%s formatting.
func (p PIN) String() string {
	return p.Masked()
}

// MarshalJSON emits the masked form. PINs are persisted via Value(),
// never via JSON serialisation.
func (p PIN) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Masked())
}

// Expired reports whether the credential's expiry has passed.
//
// A nil expiresAt means the PIN does not expire.
func Expired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return now.After(*expiresAt)
}

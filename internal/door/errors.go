package door

import "errors"

// Domain errors for the door package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, door.ErrAlreadyLocked) {
//	    // handle guarded transition
//	}
var (
	// ErrNotFound is returned when a door ID does not exist.
	ErrNotFound = errors.New("door: not found")

	// ErrExists is returned when creating a door with an ID that already exists.
	ErrExists = errors.New("door: already exists")

	// ErrAlreadyLocked is returned when locking a door that is already locked.
	ErrAlreadyLocked = errors.New("door: already locked")

	// ErrAlreadyUnlocked is returned when unlocking a door that is already unlocked.
	ErrAlreadyUnlocked = errors.New("door: already unlocked")

	// ErrNotAccessible is returned when operating a door that is offline,
	// in maintenance, or in emergency state.
	ErrNotAccessible = errors.New("door: not accessible")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("door: invalid status")

	// ErrInvalidDoor is returned when door validation fails.
	ErrInvalidDoor = errors.New("door: invalid")
)

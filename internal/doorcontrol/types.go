package doorcontrol

import (
	"time"

	"github.com/finchsec/doorman-core/internal/door"
)

// Action is a door control operation.
type Action string

// Control actions.
const (
	// ActionLock engages the lock.
	ActionLock Action = "lock"

	// ActionUnlock disengages the lock.
	ActionUnlock Action = "unlock"

	// ActionToggle flips the current lock state.
	ActionToggle Action = "toggle"

	// ActionEmergencyUnlock unconditionally unlocks the door and
	// cascades to every emergency exit in the building.
	ActionEmergencyUnlock Action = "emergency_unlock"
)

// Valid reports whether the action is a recognised value.
func (a Action) Valid() bool {
	switch a {
	case ActionLock, ActionUnlock, ActionToggle, ActionEmergencyUnlock:
		return true
	}
	return false
}

// Command is one control request.
type Command struct {
	// DoorID is the target door.
	DoorID string `json:"door_id"`

	// Action is the operation to perform.
	Action Action `json:"action"`

	// UserID attributes the action in the audit trail. Use "system" for
	// automated actions (timed relocks, fire panel triggers).
	UserID string `json:"user_id"`

	// Reason is an optional free-text justification, recorded in the
	// audit trail for emergency actions.
	Reason string `json:"reason,omitempty"`

	// Duration, when set on an unlock, re-locks the door automatically
	// after it elapses.
	Duration time.Duration `json:"duration,omitempty"`
}

// Result is the outcome of one control request.
type Result struct {
	// Success is false when the domain transition failed, or when it
	// succeeded but the controller rejected the mirrored command.
	Success bool `json:"success"`

	// Status is the door's lock state after the domain transition.
	Status door.Status `json:"status"`

	// Message is the human-readable outcome explanation.
	Message string `json:"message"`

	// Cascaded counts the additional emergency exits unlocked by an
	// emergency_unlock action.
	Cascaded int `json:"cascaded,omitempty"`

	// CascadeFailures counts cascade targets that could not be
	// unlocked. Failures are isolated per door and never stop the rest
	// of the cascade.
	CascadeFailures int `json:"cascade_failures,omitempty"`
}

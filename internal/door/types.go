package door

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Door represents a controllable access point with a lock state,
// unlock schedules, and emergency settings.
// This matches the database schema in migrations/20260301_120000_initial_schema.up.sql.
type Door struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Location
	BuildingID string  `json:"building_id"`
	Floor      *string `json:"floor,omitempty"`
	Area       *string `json:"area,omitempty"`

	// Classification
	Type DoorType `json:"type"`

	// Current lock state. Mutate only through Lock/Unlock/SetStatus so
	// illegal transitions surface as errors.
	Status Status `json:"status"`

	// Schedules determine when the door should be unlocked.
	// Evaluated by priority descending; see ShouldBeUnlocked.
	Schedules []Schedule `json:"schedules"`

	// AccessMethods the door hardware supports (pin, card, emergency).
	AccessMethods []AccessMethod `json:"access_methods"`

	// Emergency behaviour and override codes.
	Emergency EmergencySettings `json:"emergency"`

	// Hardware metadata
	DeviceID     *string `json:"device_id,omitempty"`
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateID returns a new door id ("door-" + 8 hex chars).
func GenerateID() string {
	return "door-" + uuid.NewString()[:8]
}

// DeepCopy creates a complete independent copy of the Door.
// All slice fields are cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (d *Door) DeepCopy() *Door {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.Schedules != nil {
		cpy.Schedules = make([]Schedule, len(d.Schedules))
		for i, s := range d.Schedules {
			cpy.Schedules[i] = *s.deepCopy()
		}
	}

	if d.AccessMethods != nil {
		cpy.AccessMethods = make([]AccessMethod, len(d.AccessMethods))
		copy(cpy.AccessMethods, d.AccessMethods)
	}

	if d.Emergency.OverrideCodes != nil {
		cpy.Emergency.OverrideCodes = make([]string, len(d.Emergency.OverrideCodes))
		copy(cpy.Emergency.OverrideCodes, d.Emergency.OverrideCodes)
	}

	// Pointer fields (*string) don't need deep copy because strings
	// are immutable in Go

	return &cpy
}

// Lock transitions the door to locked.
//
// Returns ErrAlreadyLocked if the door is already locked, or
// ErrNotAccessible if the door is offline, in maintenance, or in
// emergency state.
func (d *Door) Lock() error {
	if !d.IsAccessible() {
		return fmt.Errorf("%w: status %s", ErrNotAccessible, d.Status)
	}
	if d.Status == StatusLocked {
		return ErrAlreadyLocked
	}
	d.Status = StatusLocked
	return nil
}

// Unlock transitions the door to unlocked.
//
// Returns ErrAlreadyUnlocked if the door is already unlocked, or
// ErrNotAccessible if the door cannot be operated.
func (d *Door) Unlock() error {
	if !d.IsAccessible() {
		return fmt.Errorf("%w: status %s", ErrNotAccessible, d.Status)
	}
	if d.Status == StatusUnlocked {
		return ErrAlreadyUnlocked
	}
	d.Status = StatusUnlocked
	return nil
}

// EmergencyUnlock forces the door into emergency state regardless of
// its current status. Emergency bypasses the accessibility guard.
func (d *Door) EmergencyUnlock() {
	d.Status = StatusEmergency
}

// SetStatus applies an explicit status transition with validation.
// Lock/Unlock are the preferred transitions for routine operation;
// SetStatus exists for maintenance and recovery flows.
func (d *Door) SetStatus(status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	d.Status = status
	return nil
}

// IsAccessible reports whether the door can accept access attempts.
// Only locked and unlocked doors are accessible; offline, maintenance,
// and emergency doors are not.
func (d *Door) IsAccessible() bool {
	return d.Status == StatusLocked || d.Status == StatusUnlocked
}

// SupportsMethod reports whether the door hardware accepts the given
// access method.
func (d *Door) SupportsMethod(method AccessMethod) bool {
	for _, m := range d.AccessMethods {
		if m == method {
			return true
		}
	}
	return false
}

// MatchesEmergencyCode reports whether the given credential value is
// one of the door's emergency override codes.
func (d *Door) MatchesEmergencyCode(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range d.Emergency.OverrideCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsEmergencyExit reports whether the door participates in emergency
// unlock cascades.
func (d *Door) IsEmergencyExit() bool {
	return d.Type == TypeEmergencyExit
}

// Status represents the door lock state.
type Status string

// Status constants.
const (
	StatusLocked      Status = "locked"
	StatusUnlocked    Status = "unlocked"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
	StatusEmergency   Status = "emergency"
)

// Valid reports whether the status is a recognised value.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusUnlocked, StatusOffline, StatusMaintenance, StatusEmergency:
		return true
	}
	return false
}

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusLocked, StatusUnlocked, StatusOffline, StatusMaintenance, StatusEmergency,
	}
}

// DoorType represents the kind of door.
type DoorType string //nolint:revive // door.DoorType is clearer than door.Type in calling code

// DoorType constants.
const (
	TypeStandard      DoorType = "standard"
	TypeEmergencyExit DoorType = "emergency_exit"
	TypeTurnstile     DoorType = "turnstile"
	TypeVehicleGate   DoorType = "vehicle_gate"
	TypeElevator      DoorType = "elevator"
)

// AllDoorTypes returns all valid door type values.
func AllDoorTypes() []DoorType {
	return []DoorType{
		TypeStandard, TypeEmergencyExit, TypeTurnstile, TypeVehicleGate, TypeElevator,
	}
}

// AccessMethod represents how a credential is presented at the door.
type AccessMethod string

// AccessMethod constants.
const (
	MethodPIN       AccessMethod = "pin"
	MethodCard      AccessMethod = "card"
	MethodEmergency AccessMethod = "emergency"
)

// Valid reports whether the method is a recognised value.
func (m AccessMethod) Valid() bool {
	switch m {
	case MethodPIN, MethodCard, MethodEmergency:
		return true
	}
	return false
}

// AllAccessMethods returns all valid access method values.
func AllAccessMethods() []AccessMethod {
	return []AccessMethod{MethodPIN, MethodCard, MethodEmergency}
}

// EmergencySettings control how a door behaves during building
// emergencies.
type EmergencySettings struct {
	UnlockOnFire         bool `json:"unlock_on_fire"`
	UnlockOnPowerFailure bool `json:"unlock_on_power_failure"`

	// OverrideCodes are credential values that bypass normal access
	// validation when presented with the emergency method.
	OverrideCodes []string `json:"override_codes,omitempty"`
}

// PermitsEmergencyUnlock reports whether any emergency condition
// unlocks this door automatically.
func (e EmergencySettings) PermitsEmergencyUnlock() bool {
	return e.UnlockOnFire || e.UnlockOnPowerFailure
}

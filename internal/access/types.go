package access

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finchsec/doorman-core/internal/credential"
)

// Access binds a credential holder (user or visitor) to a set of doors
// in one building, with a validity window, usage counter, and
// permission set.
// This matches the database schema in migrations/20260301_120000_initial_schema.up.sql.
type Access struct {
	// Identity
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`

	// Holder: exactly one of UserID or VisitorID is set.
	UserID    *string `json:"user_id,omitempty"`
	VisitorID *string `json:"visitor_id,omitempty"`

	// Classification
	Type   AccessType `json:"access_type"`
	Status Status     `json:"status"`

	// Credential. Zero PIN means no credential is bound yet.
	PIN          credential.PIN `json:"pin,omitempty"`
	PINExpiresAt *time.Time     `json:"pin_expires_at,omitempty"`

	// DoorIDs the holder may open.
	DoorIDs []string `json:"door_ids"`

	// Permissions beyond plain entry (e.g. OVERRIDE_SCHEDULE).
	Permissions []Permission `json:"permissions,omitempty"`

	// Validity window. A nil ValidUntil means open-ended.
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	// Usage counting. A nil MaxUsageCount means unlimited.
	CurrentUsageCount int  `json:"current_usage_count"`
	MaxUsageCount     *int `json:"max_usage_count,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateID returns a new access id ("acc-" + 8 hex chars).
func GenerateID() string {
	return "acc-" + uuid.NewString()[:8]
}

// DeepCopy creates a complete independent copy of the Access.
func (a *Access) DeepCopy() *Access {
	if a == nil {
		return nil
	}

	cpy := *a

	if a.DoorIDs != nil {
		cpy.DoorIDs = make([]string, len(a.DoorIDs))
		copy(cpy.DoorIDs, a.DoorIDs)
	}
	if a.Permissions != nil {
		cpy.Permissions = make([]Permission, len(a.Permissions))
		copy(cpy.Permissions, a.Permissions)
	}

	return &cpy
}

// IsValid reports whether the access grants entry at the given time:
// active status, now inside the validity window, credential not
// expired, and usage below the maximum.
func (a *Access) IsValid(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	if now.Before(a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && now.After(*a.ValidUntil) {
		return false
	}
	if credential.Expired(a.PINExpiresAt, now) {
		return false
	}
	if a.UsageExhausted() {
		return false
	}
	return true
}

// UsageExhausted reports whether the usage counter has reached the max.
func (a *Access) UsageExhausted() bool {
	return a.MaxUsageCount != nil && a.CurrentUsageCount >= *a.MaxUsageCount
}

// WindowExpired reports whether the validity window has closed.
func (a *Access) WindowExpired(now time.Time) bool {
	if a.ValidUntil != nil && now.After(*a.ValidUntil) {
		return true
	}
	return credential.Expired(a.PINExpiresAt, now)
}

// GrantsDoor reports whether the access lists the given door.
func (a *Access) GrantsDoor(doorID string) bool {
	for _, id := range a.DoorIDs {
		if id == doorID {
			return true
		}
	}
	return false
}

// HasPermission reports whether the access carries the permission.
func (a *Access) HasPermission(p Permission) bool {
	for _, perm := range a.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// EntityType returns "user", "visitor", or "system" for audit records.
func (a *Access) EntityType() string {
	switch {
	case a.UserID != nil:
		return "user"
	case a.VisitorID != nil:
		return "visitor"
	default:
		return "system"
	}
}

// EntityID returns the holder id, or nil when unbound.
func (a *Access) EntityID() *string {
	if a.UserID != nil {
		return a.UserID
	}
	return a.VisitorID
}

// Activate transitions a pending or suspended access to active.
func (a *Access) Activate() error {
	switch a.Status {
	case StatusPending, StatusSuspended:
		a.Status = StatusActive
		return nil
	case StatusActive:
		return fmt.Errorf("%w: already active", ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: cannot activate from %s", ErrInvalidTransition, a.Status)
	}
}

// Suspend transitions an active access to suspended.
func (a *Access) Suspend() error {
	if a.Status != StatusActive {
		return fmt.Errorf("%w: cannot suspend from %s", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusSuspended
	return nil
}

// Revoke permanently invalidates the access. Revocation is terminal and
// allowed from any non-terminal state; the record persists for audit.
func (a *Access) Revoke() error {
	if a.Status == StatusRevoked {
		return fmt.Errorf("%w: already revoked", ErrInvalidTransition)
	}
	a.Status = StatusRevoked
	return nil
}

// Expire marks the access as expired (window closed or usage
// exhausted). Terminal; the record persists for audit.
func (a *Access) Expire() error {
	switch a.Status {
	case StatusRevoked:
		return fmt.Errorf("%w: cannot expire a revoked access", ErrInvalidTransition)
	case StatusExpired:
		return fmt.Errorf("%w: already expired", ErrInvalidTransition)
	}
	a.Status = StatusExpired
	return nil
}

// Status represents the access lifecycle state.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// Valid reports whether the status is a recognised value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// AccessType classifies who holds the access.
type AccessType string //nolint:revive // access.AccessType is clearer than access.Type in calling code

// AccessType constants.
const (
	TypePermanent  AccessType = "permanent"
	TypeTemporary  AccessType = "temporary"
	TypeVisitor    AccessType = "visitor"
	TypeContractor AccessType = "contractor"
)

// Permission grants a capability beyond plain entry.
type Permission string

// Permission constants.
const (
	// PermissionOverrideSchedule lets the holder open a door outside its
	// unlock schedule.
	PermissionOverrideSchedule Permission = "OVERRIDE_SCHEDULE"

	// PermissionEmergencyControl lets the holder trigger emergency
	// unlock cascades.
	PermissionEmergencyControl Permission = "EMERGENCY_CONTROL"

	// PermissionEscortRequired marks the holder as needing an escort;
	// informational for external collaborators.
	PermissionEscortRequired Permission = "ESCORT_REQUIRED"
)

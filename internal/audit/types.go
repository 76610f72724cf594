package audit

import (
	"time"

	"github.com/google/uuid"
)

// AccessLog is one immutable record of an access attempt or door
// control action. Never mutated after creation.
type AccessLog struct {
	ID         string  `json:"id"`
	BuildingID string  `json:"building_id"`
	DoorID     string  `json:"door_id"`
	EntityType string  `json:"entity_type"` // user | visitor | system | unknown
	EntityID   *string `json:"entity_id,omitempty"`
	Method     string  `json:"method"`
	Result     Result  `json:"result"`

	// FailureReason is the human-readable message for non-success
	// results; empty on success.
	FailureReason *string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// GenerateID returns a new log id ("log-" + 8 hex chars).
func GenerateID() string {
	return "log-" + uuid.NewString()[:8]
}

// Result classifies an access attempt outcome.
type Result string

// Result constants. ResultSuccess and ResultEmergency are success
// variants; the rest are denial classifications.
const (
	ResultSuccess         Result = "success"
	ResultEmergency       Result = "emergency"
	ResultDoorOffline     Result = "door_offline"
	ResultInvalidPIN      Result = "invalid_pin"
	ResultExpired         Result = "expired"
	ResultMaxUsageReached Result = "max_usage_reached"
	ResultOutsideSchedule Result = "outside_schedule"
	ResultDenied          Result = "denied"
	ResultInvalidCard     Result = "invalid_card"
	ResultUnknownError    Result = "unknown_error"
)

// AllResults returns all valid result values.
func AllResults() []Result {
	return []Result{
		ResultSuccess, ResultEmergency, ResultDoorOffline, ResultInvalidPIN,
		ResultExpired, ResultMaxUsageReached, ResultOutsideSchedule,
		ResultDenied, ResultInvalidCard, ResultUnknownError,
	}
}

// Allowed reports whether the result represents granted access.
func (r Result) Allowed() bool {
	return r == ResultSuccess || r == ResultEmergency
}

// Denial reports whether the result counts toward the failed-attempt
// alert window. Success variants and system faults do not.
func (r Result) Denial() bool {
	switch r {
	case ResultDoorOffline, ResultInvalidPIN, ResultExpired,
		ResultMaxUsageReached, ResultOutsideSchedule, ResultDenied,
		ResultInvalidCard:
		return true
	}
	return false
}

// Alert is a persisted security alert raised by the detector.
type Alert struct {
	ID         string         `json:"id"`
	Type       AlertType      `json:"type"`
	BuildingID string         `json:"building_id"`
	DoorID     *string        `json:"door_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GenerateAlertID returns a new alert id ("alr-" + 8 hex chars).
func GenerateAlertID() string {
	return "alr-" + uuid.NewString()[:8]
}

// AlertType classifies a security alert.
type AlertType string

// Alert types raised by the detector.
const (
	AlertMultipleFailedAttempts AlertType = "MULTIPLE_FAILED_ATTEMPTS"
	AlertAfterHoursAccess       AlertType = "AFTER_HOURS_ACCESS"
)

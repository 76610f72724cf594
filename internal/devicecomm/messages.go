package devicecomm

import (
	"time"

	"github.com/google/uuid"
)

// MQTT message types exchanged between Doorman Core and door controllers.

// CommandMessage is sent from Core to a controller.
// Topic: doorman/device/{device_id}/command
type CommandMessage struct {
	// RequestID uniquely identifies this command for correlation with
	// the controller's response.
	RequestID string `json:"request_id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name (e.g. "lock", "unlock", "read_state").
	Command string `json:"command"`

	// Params contains command-specific values.
	Params map[string]any `json:"params,omitempty"`
}

// ResponseMessage is sent from a controller in reply to a command.
// Topic: doorman/device/{device_id}/response
type ResponseMessage struct {
	// RequestID echoes the id from the original command.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Success indicates whether the controller executed the command.
	Success bool `json:"success"`

	// Status is the controller's reported door status after execution
	// (e.g. "locked", "unlocked").
	Status string `json:"status,omitempty"`

	// Error contains details when Success is false.
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed commands.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes reported by controllers.
const (
	ErrCodeMechanismJammed = "MECHANISM_JAMMED"
	ErrCodeUnsupported     = "UNSUPPORTED_COMMAND"
	ErrCodeControllerFault = "CONTROLLER_FAULT"
)

// StatusMessage is published by a controller when its connection state
// changes, and as the broker's LWT on unexpected disconnect.
// Topic: doorman/device/{device_id}/status (retained)
type StatusMessage struct {
	// Status is "online" or "offline".
	Status string `json:"status"`

	// Firmware is the controller firmware version, when reported.
	Firmware string `json:"firmware,omitempty"`

	// Timestamp is when the status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// Controller status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// HeartbeatMessage is published periodically by a controller.
// Topic: doorman/device/{device_id}/heartbeat
type HeartbeatMessage struct {
	// Timestamp is when the heartbeat was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// UptimeSeconds is how long the controller has been running.
	UptimeSeconds int64 `json:"uptime_seconds,omitempty"`
}

// DeviceEventMessage is published by a controller for hardware events
// (door forced open, tamper switch, reader fault).
// Topic: doorman/device/{device_id}/event
type DeviceEventMessage struct {
	// Type classifies the hardware event (e.g. "door_forced", "tamper").
	Type string `json:"type"`

	// Timestamp is when the event occurred (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Data contains event-specific values.
	Data map[string]any `json:"data,omitempty"`
}

// AccessRequestMessage is published by a controller when a credential is
// presented at its reader.
// Topic: doorman/device/{device_id}/access/request
type AccessRequestMessage struct {
	// RequestID uniquely identifies this request for correlation with
	// the grant/deny reply.
	RequestID string `json:"request_id"`

	// Timestamp is when the credential was presented (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Method is the presentation method ("pin", "card", "emergency").
	Method string `json:"method"`

	// Credential is the raw presented credential.
	Credential string `json:"credential"`
}

// AccessResultMessage is the Core's reply to an access request.
// Topic: doorman/device/{device_id}/access/granted or .../access/denied
type AccessResultMessage struct {
	// RequestID echoes the id from the access request.
	RequestID string `json:"request_id"`

	// Timestamp is when the decision was made (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Allowed indicates whether access was granted.
	Allowed bool `json:"allowed"`

	// Reason is the human-readable decision message.
	Reason string `json:"reason,omitempty"`
}

// CredentialEnteredMessage is published by a controller when a PIN is
// typed at its keypad. Unlike an access request there is no method
// field: keypad entry is always a PIN.
// Topic: doorman/device/{device_id}/credential/entered
type CredentialEnteredMessage struct {
	// RequestID uniquely identifies this entry for correlation with the
	// validated reply.
	RequestID string `json:"request_id"`

	// Timestamp is when the PIN was entered (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Credential is the raw entered PIN.
	Credential string `json:"credential"`
}

// CredentialResultMessage is the Core's reply to a credential entry.
// Topic: doorman/device/{device_id}/credential/validated
type CredentialResultMessage struct {
	// RequestID echoes the id from the credential entry.
	RequestID string `json:"request_id"`

	// Timestamp is when the decision was made (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Valid indicates whether the PIN granted access.
	Valid bool `json:"valid"`

	// Reason is the human-readable decision message.
	Reason string `json:"reason,omitempty"`
}

// GenerateRequestID returns a new request id ("req-" + 8 hex chars).
func GenerateRequestID() string {
	return "req-" + uuid.NewString()[:8]
}

package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event.
type EventType string

// Event types published by the core.
const (
	TypeAccessGranted   EventType = "access_granted"
	TypeAccessDenied    EventType = "access_denied"
	TypeDoorLocked      EventType = "door_locked"
	TypeDoorUnlocked    EventType = "door_unlocked"
	TypeEmergencyAccess EventType = "emergency_access"
	TypeSecurityAlert   EventType = "security_alert"
	TypeDeviceOnline    EventType = "device_online"
	TypeDeviceOffline   EventType = "device_offline"
)

// AllEventTypes returns all valid event type values.
func AllEventTypes() []EventType {
	return []EventType{
		TypeAccessGranted, TypeAccessDenied, TypeDoorLocked, TypeDoorUnlocked,
		TypeEmergencyAccess, TypeSecurityAlert, TypeDeviceOnline, TypeDeviceOffline,
	}
}

// Priority orders event delivery urgency for external consumers.
type Priority string

// Priority constants.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Event is the domain-event envelope consumed by notification and
// alerting collaborators.
type Event struct {
	Type        EventType      `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	Data        map[string]any `json:"data,omitempty"`
	Metadata    Metadata       `json:"metadata"`
}

// Metadata carries the envelope's delivery context.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	Version       int       `json:"version"`
	Priority      Priority  `json:"priority,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// envelopeVersion is the current event schema version.
const envelopeVersion = 1

// New builds an event with populated metadata. Data may be nil.
func New(eventType EventType, aggregateID string, data map[string]any) Event {
	return Event{
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        data,
		Metadata: Metadata{
			Timestamp:     time.Now().UTC(),
			Version:       envelopeVersion,
			Priority:      PriorityNormal,
			CorrelationID: uuid.NewString(),
		},
	}
}

// NewHighPriority builds a high-priority event (emergency access,
// security alerts).
func NewHighPriority(eventType EventType, aggregateID string, data map[string]any) Event {
	e := New(eventType, aggregateID, data)
	e.Metadata.Priority = PriorityHigh
	return e
}

// CausedBy links this event to the event that caused it.
func (e Event) CausedBy(cause Event) Event {
	e.Metadata.CausationID = cause.Metadata.CorrelationID
	return e
}

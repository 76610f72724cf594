package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler processes a published event. Handlers run synchronously in
// publish order; a slow handler delays later handlers for the same
// event, so long work belongs in the handler's own goroutine.
type Handler func(ctx context.Context, e Event) error

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher mirrors events to MQTT so external notification
// collaborators can consume them. Satisfied by the infrastructure mqtt
// client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Topics builds the MQTT topics events are mirrored to.
type Topics interface {
	CoreEvent(eventType string) string
	CoreAlert(alertID string) string
}

// Bus is a typed in-process publish/subscribe bus with handler
// isolation: a panicking or failing handler never affects other
// handlers or the publisher.
//
// All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	logger Logger

	// Optional MQTT mirror.
	publisher Publisher
	topics    Topics
	mirrorQoS byte
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for handler errors and panics.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// SetMirror enables mirroring every published event to MQTT.
// Events go to the core event topic; security alerts additionally go
// to a per-alert topic keyed by the alert id in Data["alert_id"].
func (b *Bus) SetMirror(publisher Publisher, topics Topics, qos byte) {
	b.mu.Lock()
	b.publisher = publisher
	b.topics = topics
	b.mirrorQoS = qos
	b.mu.Unlock()
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// SubscribeAll registers a handler for every known event type.
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllEventTypes() {
		b.Subscribe(t, handler)
	}
}

// Publish delivers the event to all subscribed handlers and mirrors it
// to MQTT when a mirror is configured.
//
// Handler errors and panics are logged and isolated; Publish itself
// only returns an error for an unmarshalable payload, which cannot
// happen for map-based Data.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[e.Type]))
	copy(handlers, b.handlers[e.Type])
	logger := b.logger
	publisher := b.publisher
	topics := b.topics
	qos := b.mirrorQoS
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, h, e, logger)
	}

	if publisher != nil && topics != nil {
		b.mirror(e, publisher, topics, qos, logger)
	}

	return nil
}

// invoke runs one handler with panic recovery.
func (b *Bus) invoke(ctx context.Context, h Handler, e Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic recovered",
				"event_type", e.Type,
				"aggregate_id", e.AggregateID,
				"panic", r,
			)
		}
	}()

	if err := h(ctx, e); err != nil {
		logger.Warn("event handler returned error",
			"event_type", e.Type,
			"aggregate_id", e.AggregateID,
			"error", err,
		)
	}
}

// mirror publishes the event envelope to MQTT.
func (b *Bus) mirror(e Event, publisher Publisher, topics Topics, qos byte, logger Logger) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("marshalling event for mirror", "event_type", e.Type, "error", err)
		return
	}

	topic := topics.CoreEvent(string(e.Type))
	if err := publisher.Publish(topic, payload, qos, false); err != nil {
		logger.Warn("mirroring event to mqtt", "topic", topic, "error", err)
	}

	if e.Type == TypeSecurityAlert {
		if alertID, ok := e.Data["alert_id"].(string); ok && alertID != "" {
			alertTopic := topics.CoreAlert(alertID)
			if err := publisher.Publish(alertTopic, payload, qos, false); err != nil {
				logger.Warn("mirroring alert to mqtt", "topic", alertTopic, "error", err)
			}
		}
	}
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// String implements fmt.Stringer for debugging.
func (e Event) String() string {
	return fmt.Sprintf("%s(%s)", e.Type, e.AggregateID)
}

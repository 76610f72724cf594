package devicecomm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finchsec/doorman-core/internal/events"
	"github.com/finchsec/doorman-core/internal/infrastructure/mqtt"
)

// Service operation constants.
const (
	// defaultCommandTimeout is how long to wait for a controller response.
	defaultCommandTimeout = 5 * time.Second

	// minTopicParts is the minimum number of parts in a device topic
	// (doorman/device/{device_id}/{class}).
	minTopicParts = 4
)

// MQTTClient is the interface for broker operations.
// Satisfied by *mqtt.Client; narrowed for mocking in tests.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// EventPublisher publishes device presence events. Satisfied by the
// events bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// AccessHandler decides an access request from a controller's reader.
// Wired to the validation service in main.
type AccessHandler func(ctx context.Context, deviceID string, req AccessRequestMessage) AccessResultMessage

// CredentialHandler decides a PIN typed at a controller's keypad.
// Wired to the validation service in main.
type CredentialHandler func(ctx context.Context, deviceID string, req CredentialEnteredMessage) CredentialResultMessage

// DeviceEventHandler receives hardware events from controllers (door
// forced, tamper).
type DeviceEventHandler func(ctx context.Context, deviceID string, event DeviceEventMessage)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service is the device communication channel. It tracks controller
// presence, correlates command responses by request id, and queues
// outbound commands while the broker is unreachable.
//
// Thread safety: all methods are safe for concurrent use.
type Service struct {
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte

	commandTimeout time.Duration

	pending *pendingTable
	queue   *offlineQueue
	devices *deviceTable

	eventPublisher EventPublisher // optional

	accessHandler     AccessHandler
	credentialHandler CredentialHandler
	eventHandler      DeviceEventHandler
	handlerMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// ServiceOptions holds configuration for creating a Service.
type ServiceOptions struct {
	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// QoS is the quality of service for outbound publishes.
	QoS byte

	// CommandTimeout bounds the wait for a controller response.
	// Defaults to 5s.
	CommandTimeout time.Duration

	// QueueCapacity bounds the offline command queue. Defaults to 256.
	QueueCapacity int

	// Events is the optional domain event publisher for presence
	// transitions.
	Events EventPublisher

	// Logger is an optional structured logger.
	Logger Logger
}

// NewService creates the device channel. Call Start to subscribe.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}

	s := &Service{
		mqtt:           opts.MQTT,
		qos:            opts.QoS,
		commandTimeout: opts.CommandTimeout,
		pending:        newPendingTable(),
		queue:          newOfflineQueue(opts.QueueCapacity),
		devices:        newDeviceTable(),
		eventPublisher: opts.Events,
		logger:         noopLogger{},
	}
	if opts.Logger != nil {
		s.logger = opts.Logger
	}
	return s, nil
}

// Start subscribes to all controller topics. Safe to call again after a
// reconnect; the broker client restores subscriptions itself.
func (s *Service) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{s.topics.AllDeviceStatuses(), s.handleStatus},
		{s.topics.AllDeviceHeartbeats(), s.handleHeartbeat},
		{s.topics.AllDeviceResponses(), s.handleResponse},
		{s.topics.AllDeviceEvents(), s.handleDeviceEvent},
		{s.topics.AllDeviceAccess(), s.handleAccess},
		{s.topics.AllDeviceCredentials(), s.handleCredential},
	}

	for _, sub := range subs {
		if err := s.mqtt.Subscribe(sub.topic, s.qos, sub.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", sub.topic, err)
		}
	}

	s.getLogger().Info("device channel started", "subscriptions", len(subs))
	return nil
}

// Stop releases all outstanding command waiters.
func (s *Service) Stop() {
	s.pending.close()
	s.getLogger().Info("device channel stopped", "queued", s.queue.size())
}

// SetAccessHandler sets the decision function for reader access
// requests.
func (s *Service) SetAccessHandler(handler AccessHandler) {
	s.handlerMu.Lock()
	s.accessHandler = handler
	s.handlerMu.Unlock()
}

// SetCredentialHandler sets the decision function for keypad PIN
// entries.
func (s *Service) SetCredentialHandler(handler CredentialHandler) {
	s.handlerMu.Lock()
	s.credentialHandler = handler
	s.handlerMu.Unlock()
}

// SetDeviceEventHandler sets the receiver for controller hardware
// events.
func (s *Service) SetDeviceEventHandler(handler DeviceEventHandler) {
	s.handlerMu.Lock()
	s.eventHandler = handler
	s.handlerMu.Unlock()
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Service) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// =============================================================================
// Commands
// =============================================================================

// SendCommand sends a command to a controller and waits for its
// response.
//
// While the broker is unreachable the command is queued FIFO and
// ErrQueued is returned: core state stays authoritative and the
// controller resynchronises on delivery. ErrTimeout is returned when
// the controller does not respond within the command timeout.
func (s *Service) SendCommand(ctx context.Context, deviceID, command string, params map[string]any) (*ResponseMessage, error) {
	cmd := CommandMessage{
		RequestID: GenerateRequestID(),
		Timestamp: time.Now().UTC(),
		Command:   command,
		Params:    params,
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	topic := s.topics.DeviceCommand(deviceID)

	if !s.mqtt.IsConnected() {
		if err := s.queue.enqueue(topic, payload, s.qos); err != nil {
			return nil, err
		}
		s.getLogger().Warn("broker unreachable, command queued",
			"device_id", deviceID,
			"command", command,
			"queue_depth", s.queue.size(),
		)
		return nil, fmt.Errorf("%w: %s to %s", ErrQueued, command, deviceID)
	}

	done, err := s.pending.track(cmd.RequestID, deviceID, s.commandTimeout, func() {
		s.getLogger().Warn("command timed out",
			"device_id", deviceID,
			"command", command,
			"request_id", cmd.RequestID,
		)
	})
	if err != nil {
		return nil, err
	}

	if err := s.mqtt.Publish(topic, payload, s.qos, false); err != nil {
		s.pending.remove(cmd.RequestID)
		return nil, fmt.Errorf("publishing command: %w", err)
	}

	select {
	case resp, ok := <-done:
		if !ok {
			return nil, fmt.Errorf("%w: %s to %s", ErrTimeout, command, deviceID)
		}
		return resp, nil
	case <-ctx.Done():
		s.pending.remove(cmd.RequestID)
		return nil, fmt.Errorf("waiting for response: %w", ctx.Err())
	}
}

// FlushQueue publishes all queued commands in FIFO order. Wire this to
// the broker client's on-connect callback. Unsent messages return to
// the head of the queue.
func (s *Service) FlushQueue() {
	messages := s.queue.drain()
	if len(messages) == 0 {
		return
	}

	for i, msg := range messages {
		if err := s.mqtt.Publish(msg.topic, msg.payload, msg.qos, false); err != nil {
			s.queue.requeueFront(messages[i:])
			s.getLogger().Error("queue flush interrupted",
				"sent", i,
				"remaining", len(messages)-i,
				"error", err,
			)
			return
		}
	}

	s.getLogger().Info("offline queue flushed", "count", len(messages))
}

// QueueDepth returns the number of commands awaiting delivery.
func (s *Service) QueueDepth() int {
	return s.queue.size()
}

// PendingCount returns the number of commands awaiting responses.
func (s *Service) PendingCount() int {
	return s.pending.count()
}

// =============================================================================
// Presence
// =============================================================================

// IsDeviceOnline reports whether a controller is currently online.
func (s *Service) IsDeviceOnline(deviceID string) bool {
	return s.devices.isOnline(deviceID)
}

// Device returns a snapshot of one controller's presence.
func (s *Service) Device(deviceID string) (DeviceState, bool) {
	return s.devices.get(deviceID)
}

// Devices returns snapshots of all known controllers.
func (s *Service) Devices() []DeviceState {
	return s.devices.snapshot()
}

// =============================================================================
// Inbound handlers
// =============================================================================

// handleStatus processes controller status reports (including LWT).
func (s *Service) handleStatus(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed status topic %q", topic)
	}

	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parsing status from %s: %w", deviceID, err)
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch msg.Status {
	case StatusOnline:
		if s.devices.markOnline(deviceID, msg.Firmware, at) {
			s.getLogger().Info("controller online", "device_id", deviceID, "firmware", msg.Firmware)
			s.publishPresence(events.TypeDeviceOnline, deviceID, msg.Firmware)
		}
	case StatusOffline:
		if s.devices.markOffline(deviceID, at) {
			s.getLogger().Warn("controller offline", "device_id", deviceID)
			s.publishPresence(events.TypeDeviceOffline, deviceID, "")
		}
	default:
		return fmt.Errorf("unknown status %q from %s", msg.Status, deviceID)
	}

	return nil
}

// handleHeartbeat refreshes a controller's last-seen time. A heartbeat
// from a controller marked offline also brings it back online.
func (s *Service) handleHeartbeat(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed heartbeat topic %q", topic)
	}

	var msg HeartbeatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parsing heartbeat from %s: %w", deviceID, err)
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if s.devices.isOnline(deviceID) {
		s.devices.touch(deviceID, at)
		return nil
	}

	if s.devices.markOnline(deviceID, "", at) {
		s.getLogger().Info("controller online via heartbeat", "device_id", deviceID)
		s.publishPresence(events.TypeDeviceOnline, deviceID, "")
	}
	return nil
}

// handleResponse correlates a controller response to its outstanding
// command. Late responses (after timeout) are dropped.
func (s *Service) handleResponse(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed response topic %q", topic)
	}

	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("parsing response from %s: %w", deviceID, err)
	}

	if resp.RequestID == "" {
		return fmt.Errorf("response from %s missing request id", deviceID)
	}

	if !s.pending.resolve(resp.RequestID, &resp) {
		s.getLogger().Warn("dropping uncorrelated response",
			"device_id", deviceID,
			"request_id", resp.RequestID,
		)
	}
	return nil
}

// handleDeviceEvent forwards controller hardware events to the
// configured handler.
func (s *Service) handleDeviceEvent(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed event topic %q", topic)
	}

	var msg DeviceEventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parsing event from %s: %w", deviceID, err)
	}

	s.devices.touch(deviceID, time.Now().UTC())

	s.handlerMu.RLock()
	handler := s.eventHandler
	s.handlerMu.RUnlock()

	if handler != nil {
		handler(context.Background(), deviceID, msg)
	}
	return nil
}

// handleAccess decides a reader access request and publishes the
// grant/deny reply. Reply topics from our own publishes also match the
// access wildcard and are skipped.
func (s *Service) handleAccess(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts+1 || parts[len(parts)-1] != "request" {
		return nil // granted/denied replies, not for us
	}

	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed access topic %q", topic)
	}

	var req AccessRequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parsing access request from %s: %w", deviceID, err)
	}

	s.devices.touch(deviceID, time.Now().UTC())

	s.handlerMu.RLock()
	handler := s.accessHandler
	s.handlerMu.RUnlock()

	if handler == nil {
		s.getLogger().Warn("access request with no handler wired", "device_id", deviceID)
		return nil
	}

	result := handler(context.Background(), deviceID, req)
	result.RequestID = req.RequestID
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	kind := "denied"
	if result.Allowed {
		kind = "granted"
	}

	respPayload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling access result: %w", err)
	}

	if err := s.mqtt.Publish(s.topics.DeviceAccess(deviceID, kind), respPayload, s.qos, false); err != nil {
		return fmt.Errorf("publishing access result: %w", err)
	}
	return nil
}

// handleCredential decides a keypad PIN entry and publishes the
// validated reply. Our own validated replies also match the credential
// wildcard and are skipped.
func (s *Service) handleCredential(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts+1 || parts[len(parts)-1] != "entered" {
		return nil // validated replies, not for us
	}

	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed credential topic %q", topic)
	}

	var req CredentialEnteredMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parsing credential entry from %s: %w", deviceID, err)
	}

	s.devices.touch(deviceID, time.Now().UTC())

	s.handlerMu.RLock()
	handler := s.credentialHandler
	s.handlerMu.RUnlock()

	if handler == nil {
		s.getLogger().Warn("credential entry with no handler wired", "device_id", deviceID)
		return nil
	}

	result := handler(context.Background(), deviceID, req)
	result.RequestID = req.RequestID
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	respPayload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling credential result: %w", err)
	}

	if err := s.mqtt.Publish(s.topics.DeviceCredential(deviceID, "validated"), respPayload, s.qos, false); err != nil {
		return fmt.Errorf("publishing credential result: %w", err)
	}
	return nil
}

// publishPresence emits a device presence transition event.
func (s *Service) publishPresence(eventType events.EventType, deviceID, firmware string) {
	if s.eventPublisher == nil {
		return
	}

	data := map[string]any{"device_id": deviceID}
	if firmware != "" {
		data["firmware"] = firmware
	}

	if err := s.eventPublisher.Publish(context.Background(), events.New(eventType, deviceID, data)); err != nil {
		s.getLogger().Error("publishing presence event", "device_id", deviceID, "error", err)
	}
}

// deviceIDFromTopic extracts the controller id from a device topic
// (doorman/device/{device_id}/...).
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[0]+"/"+parts[1] != mqtt.TopicPrefixDevice {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

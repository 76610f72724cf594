package devicecomm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finchsec/doorman-core/internal/events"
	"github.com/finchsec/doorman-core/internal/infrastructure/mqtt"
)

// mockMQTT implements MQTTClient, recording publishes and keeping
// registered handlers so tests can inject inbound messages.
type mockMQTT struct {
	mu        sync.Mutex
	connected bool
	published []publishedMessage
	handlers  map[string]mqtt.MessageHandler
	pubErr    error
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pubErr != nil {
		return m.pubErr
	}
	m.published = append(m.published, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

func (m *mockMQTT) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func (m *mockMQTT) publishedAt(i int) publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[i]
}

// deliver invokes the handler registered for a wildcard pattern with a
// concrete topic.
func (m *mockMQTT) deliver(t *testing.T, pattern, topic string, payload []byte) error {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no handler registered for %s", pattern)
	}
	return handler(topic, payload)
}

// capturingBus records domain events published by the service.
type capturingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *capturingBus) Publish(ctx context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *capturingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestService(t *testing.T, client *mockMQTT, bus EventPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{
		MQTT:           client,
		QoS:            1,
		CommandTimeout: 100 * time.Millisecond,
		Events:         bus,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestNewService_RequiresMQTT(t *testing.T) {
	if _, err := NewService(ServiceOptions{}); err == nil {
		t.Error("expected error for nil mqtt client")
	}
}

func TestSendCommand_ResponseCorrelation(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	svc := newTestService(t, client, nil)

	go func() {
		// Wait for the command to appear, then respond with its id.
		for client.publishCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		var cmd CommandMessage
		if err := json.Unmarshal(client.publishedAt(0).payload, &cmd); err != nil {
			return
		}
		resp := ResponseMessage{RequestID: cmd.RequestID, Success: true, Status: "unlocked"}
		payload, _ := json.Marshal(resp)
		_ = client.deliver(t, topics.AllDeviceResponses(),
			topics.DeviceResponse("ctrl-01"), payload)
	}()

	resp, err := svc.SendCommand(context.Background(), "ctrl-01", "unlock", nil)
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if !resp.Success || resp.Status != "unlocked" {
		t.Errorf("resp = %+v", resp)
	}
	if svc.PendingCount() != 0 {
		t.Errorf("pending count = %d after resolve, want 0", svc.PendingCount())
	}
}

func TestSendCommand_Timeout(t *testing.T) {
	client := newMockMQTT()
	svc := newTestService(t, client, nil)

	_, err := svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
	if svc.PendingCount() != 0 {
		t.Errorf("pending count = %d after timeout, want 0", svc.PendingCount())
	}
}

func TestSendCommand_OfflineQueuesFIFO(t *testing.T) {
	client := newMockMQTT()
	client.setConnected(false)
	svc := newTestService(t, client, nil)

	for _, cmd := range []string{"lock", "unlock", "lock"} {
		if _, err := svc.SendCommand(context.Background(), "ctrl-01", cmd, nil); !errors.Is(err, ErrQueued) {
			t.Fatalf("error = %v, want ErrQueued", err)
		}
	}
	if svc.QueueDepth() != 3 {
		t.Fatalf("queue depth = %d, want 3", svc.QueueDepth())
	}

	client.setConnected(true)
	svc.FlushQueue()

	if svc.QueueDepth() != 0 {
		t.Errorf("queue depth = %d after flush, want 0", svc.QueueDepth())
	}
	if client.publishCount() != 3 {
		t.Fatalf("published %d messages, want 3", client.publishCount())
	}

	// Flush must preserve enqueue order.
	wantOrder := []string{"lock", "unlock", "lock"}
	for i, want := range wantOrder {
		var cmd CommandMessage
		if err := json.Unmarshal(client.publishedAt(i).payload, &cmd); err != nil {
			t.Fatalf("unmarshal published command %d: %v", i, err)
		}
		if cmd.Command != want {
			t.Errorf("flush position %d = %s, want %s", i, cmd.Command, want)
		}
	}
}

func TestFlushQueue_FailureRequeuesRemainder(t *testing.T) {
	client := newMockMQTT()
	client.setConnected(false)
	svc := newTestService(t, client, nil)

	_, _ = svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
	_, _ = svc.SendCommand(context.Background(), "ctrl-01", "unlock", nil)

	client.mu.Lock()
	client.pubErr = errors.New("broker gone again")
	client.connected = true
	client.mu.Unlock()

	svc.FlushQueue()

	if svc.QueueDepth() != 2 {
		t.Errorf("queue depth = %d after failed flush, want 2", svc.QueueDepth())
	}
}

func TestQueue_CapacityEnforced(t *testing.T) {
	client := newMockMQTT()
	client.setConnected(false)
	svc, err := NewService(ServiceOptions{MQTT: client, QueueCapacity: 2})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	_, _ = svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
	_, _ = svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
	_, err = svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestHandleStatus_PresenceTransitions(t *testing.T) {
	client := newMockMQTT()
	bus := &capturingBus{}
	topics := mqtt.Topics{}
	svc := newTestService(t, client, bus)

	online, _ := json.Marshal(StatusMessage{Status: StatusOnline, Firmware: "2.1.0"})
	offline, _ := json.Marshal(StatusMessage{Status: StatusOffline})
	statusTopic := topics.DeviceStatus("ctrl-01")

	if err := client.deliver(t, topics.AllDeviceStatuses(), statusTopic, online); err != nil {
		t.Fatalf("deliver online: %v", err)
	}
	if !svc.IsDeviceOnline("ctrl-01") {
		t.Error("controller not marked online")
	}
	state, ok := svc.Device("ctrl-01")
	if !ok || state.Firmware != "2.1.0" {
		t.Errorf("state = %+v", state)
	}

	// Repeated online report is not a transition.
	_ = client.deliver(t, topics.AllDeviceStatuses(), statusTopic, online)
	if bus.count() != 1 {
		t.Errorf("got %d events after duplicate online, want 1", bus.count())
	}

	if err := client.deliver(t, topics.AllDeviceStatuses(), statusTopic, offline); err != nil {
		t.Fatalf("deliver offline: %v", err)
	}
	if svc.IsDeviceOnline("ctrl-01") {
		t.Error("controller still online after offline status")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.events) != 2 {
		t.Fatalf("got %d events, want 2", len(bus.events))
	}
	if bus.events[0].Type != events.TypeDeviceOnline {
		t.Errorf("first event = %s", bus.events[0].Type)
	}
	if bus.events[1].Type != events.TypeDeviceOffline {
		t.Errorf("second event = %s", bus.events[1].Type)
	}
}

func TestHandleHeartbeat_RevivesOfflineController(t *testing.T) {
	client := newMockMQTT()
	bus := &capturingBus{}
	topics := mqtt.Topics{}
	svc := newTestService(t, client, bus)

	hb, _ := json.Marshal(HeartbeatMessage{Timestamp: time.Now().UTC()})
	if err := client.deliver(t, topics.AllDeviceHeartbeats(), topics.DeviceHeartbeat("ctrl-02"), hb); err != nil {
		t.Fatalf("deliver heartbeat: %v", err)
	}

	if !svc.IsDeviceOnline("ctrl-02") {
		t.Error("heartbeat did not bring controller online")
	}
	if bus.count() != 1 {
		t.Errorf("got %d events, want 1 online transition", bus.count())
	}
}

func TestHandleResponse_UncorrelatedDropped(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	_ = newTestService(t, client, nil)

	resp, _ := json.Marshal(ResponseMessage{RequestID: "req-deadbeef", Success: true})
	// A late or unknown response must not error the handler.
	if err := client.deliver(t, topics.AllDeviceResponses(), topics.DeviceResponse("ctrl-01"), resp); err != nil {
		t.Errorf("deliver uncorrelated response: %v", err)
	}
}

func TestHandleAccess_DispatchesAndReplies(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	svc := newTestService(t, client, nil)

	svc.SetAccessHandler(func(ctx context.Context, deviceID string, req AccessRequestMessage) AccessResultMessage {
		if deviceID != "ctrl-01" {
			t.Errorf("deviceID = %s", deviceID)
		}
		allowed := req.Credential == "123456"
		return AccessResultMessage{Allowed: allowed, Reason: "checked"}
	})

	req, _ := json.Marshal(AccessRequestMessage{RequestID: "req-11111111", Method: "pin", Credential: "123456"})
	if err := client.deliver(t, topics.AllDeviceAccess(), topics.DeviceAccess("ctrl-01", "request"), req); err != nil {
		t.Fatalf("deliver access request: %v", err)
	}

	if client.publishCount() != 1 {
		t.Fatalf("published %d replies, want 1", client.publishCount())
	}
	pub := client.publishedAt(0)
	if pub.topic != topics.DeviceAccess("ctrl-01", "granted") {
		t.Errorf("reply topic = %s", pub.topic)
	}
	var result AccessResultMessage
	if err := json.Unmarshal(pub.payload, &result); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if result.RequestID != "req-11111111" {
		t.Errorf("reply request id = %s, want echo of request", result.RequestID)
	}
}

func TestHandleAccess_IgnoresOwnReplies(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	svc := newTestService(t, client, nil)

	called := false
	svc.SetAccessHandler(func(ctx context.Context, deviceID string, req AccessRequestMessage) AccessResultMessage {
		called = true
		return AccessResultMessage{}
	})

	reply, _ := json.Marshal(AccessResultMessage{RequestID: "req-22222222", Allowed: true})
	if err := client.deliver(t, topics.AllDeviceAccess(), topics.DeviceAccess("ctrl-01", "granted"), reply); err != nil {
		t.Fatalf("deliver reply: %v", err)
	}
	if called {
		t.Error("granted reply dispatched to access handler")
	}
}

func TestHandleCredential_DispatchesAndReplies(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	svc := newTestService(t, client, nil)

	svc.SetCredentialHandler(func(ctx context.Context, deviceID string, req CredentialEnteredMessage) CredentialResultMessage {
		if deviceID != "ctrl-01" {
			t.Errorf("deviceID = %s", deviceID)
		}
		return CredentialResultMessage{Valid: req.Credential == "123456", Reason: "checked"}
	})

	entry, _ := json.Marshal(CredentialEnteredMessage{RequestID: "req-33333333", Credential: "123456"})
	if err := client.deliver(t, topics.AllDeviceCredentials(), topics.DeviceCredential("ctrl-01", "entered"), entry); err != nil {
		t.Fatalf("deliver credential entry: %v", err)
	}

	if client.publishCount() != 1 {
		t.Fatalf("published %d replies, want 1", client.publishCount())
	}
	pub := client.publishedAt(0)
	if pub.topic != topics.DeviceCredential("ctrl-01", "validated") {
		t.Errorf("reply topic = %s", pub.topic)
	}
	var result CredentialResultMessage
	if err := json.Unmarshal(pub.payload, &result); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !result.Valid {
		t.Error("valid PIN reported invalid")
	}
	if result.RequestID != "req-33333333" {
		t.Errorf("reply request id = %s, want echo of entry", result.RequestID)
	}
}

func TestHandleCredential_IgnoresOwnReplies(t *testing.T) {
	client := newMockMQTT()
	topics := mqtt.Topics{}
	svc := newTestService(t, client, nil)

	called := false
	svc.SetCredentialHandler(func(ctx context.Context, deviceID string, req CredentialEnteredMessage) CredentialResultMessage {
		called = true
		return CredentialResultMessage{}
	})

	reply, _ := json.Marshal(CredentialResultMessage{RequestID: "req-44444444", Valid: true})
	if err := client.deliver(t, topics.AllDeviceCredentials(), topics.DeviceCredential("ctrl-01", "validated"), reply); err != nil {
		t.Fatalf("deliver reply: %v", err)
	}
	if called {
		t.Error("validated reply dispatched to credential handler")
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"doorman/device/ctrl-01/status", "ctrl-01", true},
		{"doorman/device/ctrl-01/access/request", "ctrl-01", true},
		{"doorman/core/event/access_granted", "", false},
		{"doorman/device//status", "", false},
		{"short/topic", "", false},
	}

	for _, tt := range tests {
		id, ok := deviceIDFromTopic(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("deviceIDFromTopic(%q) = (%q, %v), want (%q, %v)",
				tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestStop_ReleasesWaiters(t *testing.T) {
	client := newMockMQTT()
	svc, err := NewService(ServiceOptions{MQTT: client, CommandTimeout: time.Minute})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.SendCommand(context.Background(), "ctrl-01", "lock", nil)
		errCh <- err
	}()

	for svc.PendingCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	svc.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("error = %v, want ErrTimeout after close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendCommand still blocked after Stop")
	}
}

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finchsec/doorman-core/internal/events"
)

// mockRepository backs the detector tests without SQLite.
type mockRepository struct {
	mu           sync.Mutex
	logs         []*AccessLog
	alerts       []*Alert
	failureCount int
	countErr     error
	createErr    error
}

func (m *mockRepository) Create(ctx context.Context, log *AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return &ListResult{Logs: []AccessLog{}}, nil
}

func (m *mockRepository) CountFailuresSince(ctx context.Context, doorID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failureCount, m.countErr
}

func (m *mockRepository) CreateAlert(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if alert.ID == "" {
		alert.ID = GenerateAlertID()
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockRepository) ListAlerts(ctx context.Context, buildingID string, limit int) ([]Alert, error) {
	return nil, nil
}

func (m *mockRepository) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestDetector(repo *mockRepository, pub *mockPublisher) *Detector {
	return NewDetector(repo, DetectorConfig{
		FailedAttemptThreshold: 3,
		FailedAttemptWindow:    5 * time.Minute,
		AfterHoursStart:        22,
		AfterHoursEnd:          6,
	}, pub)
}

func denialAt(at time.Time) *AccessLog {
	return &AccessLog{
		ID:         GenerateID(),
		BuildingID: "bld-01",
		DoorID:     "door-001",
		EntityType: "user",
		Method:     "pin",
		Result:     ResultInvalidPIN,
		CreatedAt:  at,
	}
}

func successAt(at time.Time) *AccessLog {
	log := denialAt(at)
	log.Result = ResultSuccess
	return log
}

func TestDetector_FailedAttempts(t *testing.T) {
	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("fires exactly at threshold", func(t *testing.T) {
		repo := &mockRepository{failureCount: 3}
		pub := &mockPublisher{}
		d := newTestDetector(repo, pub)

		d.Analyze(context.Background(), denialAt(noon))

		if repo.alertCount() != 1 {
			t.Fatalf("got %d alerts, want 1", repo.alertCount())
		}
		repo.mu.Lock()
		alert := repo.alerts[0]
		repo.mu.Unlock()
		if alert.Type != AlertMultipleFailedAttempts {
			t.Errorf("Type = %s", alert.Type)
		}
		if alert.DoorID == nil || *alert.DoorID != "door-001" {
			t.Errorf("DoorID = %v", alert.DoorID)
		}
		if pub.eventCount() != 1 {
			t.Errorf("got %d events, want 1", pub.eventCount())
		}
	})

	t.Run("below threshold stays quiet", func(t *testing.T) {
		repo := &mockRepository{failureCount: 2}
		pub := &mockPublisher{}
		d := newTestDetector(repo, pub)

		d.Analyze(context.Background(), denialAt(noon))

		if repo.alertCount() != 0 {
			t.Errorf("got %d alerts, want 0", repo.alertCount())
		}
	})

	t.Run("fourth failure in window does not duplicate", func(t *testing.T) {
		repo := &mockRepository{failureCount: 4}
		pub := &mockPublisher{}
		d := newTestDetector(repo, pub)

		d.Analyze(context.Background(), denialAt(noon))

		if repo.alertCount() != 0 {
			t.Errorf("got %d alerts past threshold, want 0 (already raised)", repo.alertCount())
		}
		if pub.eventCount() != 0 {
			t.Errorf("got %d events, want 0", pub.eventCount())
		}
	})

	t.Run("success does not count failures", func(t *testing.T) {
		repo := &mockRepository{failureCount: 3}
		pub := &mockPublisher{}
		d := newTestDetector(repo, pub)

		d.Analyze(context.Background(), successAt(noon))

		repo.mu.Lock()
		defer repo.mu.Unlock()
		for _, a := range repo.alerts {
			if a.Type == AlertMultipleFailedAttempts {
				t.Error("success raised a failed-attempt alert")
			}
		}
	})
}

func TestDetector_AfterHours(t *testing.T) {
	day := func(hour int) time.Time {
		return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name      string
		hour      int
		wantAlert bool
	}{
		{"23:00 is after hours", 23, true},
		{"02:00 is after hours", 2, true},
		{"14:00 is in hours", 14, false},
		{"22:00 boundary is in hours", 22, false},
		{"06:00 boundary is in hours", 6, false},
		{"05:00 is after hours", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			pub := &mockPublisher{}
			d := newTestDetector(repo, pub)

			d.Analyze(context.Background(), successAt(day(tt.hour)))

			got := repo.alertCount() == 1
			if got != tt.wantAlert {
				t.Errorf("hour %d: alert raised = %v, want %v", tt.hour, got, tt.wantAlert)
			}
			if tt.wantAlert {
				repo.mu.Lock()
				alertType := repo.alerts[0].Type
				repo.mu.Unlock()
				if alertType != AlertAfterHoursAccess {
					t.Errorf("Type = %s", alertType)
				}
			}
		})
	}

	t.Run("denial at night is not an after-hours alert", func(t *testing.T) {
		repo := &mockRepository{}
		pub := &mockPublisher{}
		d := newTestDetector(repo, pub)

		d.Analyze(context.Background(), denialAt(day(23)))

		repo.mu.Lock()
		defer repo.mu.Unlock()
		for _, a := range repo.alerts {
			if a.Type == AlertAfterHoursAccess {
				t.Error("denied attempt raised an after-hours alert")
			}
		}
	})
}

func TestDetector_AfterHoursUsesSiteTimezone(t *testing.T) {
	// Log timestamps are stored UTC; the after-hours window is read in
	// the site's local time.
	seoul := time.FixedZone("UTC+9", 9*60*60)

	newDetector := func(repo *mockRepository, pub *mockPublisher) *Detector {
		return NewDetector(repo, DetectorConfig{
			FailedAttemptThreshold: 3,
			FailedAttemptWindow:    5 * time.Minute,
			AfterHoursStart:        22,
			AfterHoursEnd:          6,
			Location:               seoul,
		}, pub)
	}

	t.Run("14:00 local success is in hours", func(t *testing.T) {
		repo := &mockRepository{}
		pub := &mockPublisher{}
		d := newDetector(repo, pub)

		// 05:00 UTC = 14:00 in UTC+9.
		d.Analyze(context.Background(), successAt(time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)))

		if repo.alertCount() != 0 {
			t.Errorf("got %d alerts for a 14:00 local success, want 0", repo.alertCount())
		}
	})

	t.Run("23:00 local success is after hours", func(t *testing.T) {
		repo := &mockRepository{}
		pub := &mockPublisher{}
		d := newDetector(repo, pub)

		// 14:00 UTC = 23:00 in UTC+9.
		d.Analyze(context.Background(), successAt(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)))

		if repo.alertCount() != 1 {
			t.Fatalf("got %d alerts for a 23:00 local success, want 1", repo.alertCount())
		}
		repo.mu.Lock()
		defer repo.mu.Unlock()
		if repo.alerts[0].Type != AlertAfterHoursAccess {
			t.Errorf("Type = %s", repo.alerts[0].Type)
		}
	})
}

func TestDetector_ErrorsDoNotPropagate(t *testing.T) {
	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("count failure is swallowed", func(t *testing.T) {
		repo := &mockRepository{countErr: errors.New("db locked")}
		d := newTestDetector(repo, &mockPublisher{})

		// Analyze has no error return; it must not panic either.
		d.Analyze(context.Background(), denialAt(noon))
	})

	t.Run("alert persist failure is swallowed", func(t *testing.T) {
		repo := &mockRepository{failureCount: 3, createErr: errors.New("disk full")}
		d := newTestDetector(repo, &mockPublisher{})

		d.Analyze(context.Background(), denialAt(noon))
	})
}

func TestDetector_EventPayload(t *testing.T) {
	repo := &mockRepository{failureCount: 3}
	pub := &mockPublisher{}
	d := newTestDetector(repo, pub)

	d.Analyze(context.Background(), denialAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("got %d events, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.TypeSecurityAlert {
		t.Errorf("Type = %s", e.Type)
	}
	if e.Metadata.Priority != events.PriorityHigh {
		t.Errorf("Priority = %s, want high", e.Metadata.Priority)
	}
	if _, ok := e.Data["alert_id"].(string); !ok {
		t.Error("event data missing alert_id")
	}
	if e.Data["door_id"] != "door-001" {
		t.Errorf("door_id = %v", e.Data["door_id"])
	}
}

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/finchsec/doorman-core/internal/events"
)

// EventPublisher publishes security alert events. Satisfied by the
// events bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Logger defines the logging interface used by the Detector.
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

// DetectorConfig tunes the detector's two checks.
type DetectorConfig struct {
	// FailedAttemptThreshold is the denial count that raises a
	// MULTIPLE_FAILED_ATTEMPTS alert.
	FailedAttemptThreshold int

	// FailedAttemptWindow is the trailing window denials are counted in.
	FailedAttemptWindow time.Duration

	// AfterHoursStart and AfterHoursEnd bound normal hours: a success
	// at local hour < AfterHoursEnd or > AfterHoursStart raises an
	// AFTER_HOURS_ACCESS alert.
	AfterHoursStart int // e.g. 22
	AfterHoursEnd   int // e.g. 6

	// Location is the site timezone the after-hours hours are read in.
	// Log timestamps are stored UTC; nil defaults to UTC.
	Location *time.Location
}

// Detector analyses every access log write for security patterns.
//
// Two checks run after each write:
//
//  1. Failed attempts: denial-class results for the same door in the
//     trailing window. The alert fires exactly when the count reaches
//     the threshold; a fourth failure inside the same window does not
//     re-raise it.
//  2. After hours: any success at local hour < AfterHoursEnd or
//     > AfterHoursStart.
//
// Alerts persist to security_alerts and publish high-priority events.
type Detector struct {
	repo      Repository
	cfg       DetectorConfig
	publisher EventPublisher
	logger    Logger
}

// NewDetector creates a detector over the given repository.
func NewDetector(repo Repository, cfg DetectorConfig, publisher EventPublisher) *Detector {
	if cfg.FailedAttemptThreshold <= 0 {
		cfg.FailedAttemptThreshold = 3
	}
	if cfg.FailedAttemptWindow <= 0 {
		cfg.FailedAttemptWindow = 5 * time.Minute
	}
	if cfg.AfterHoursStart == 0 {
		cfg.AfterHoursStart = 22
	}
	if cfg.AfterHoursEnd == 0 {
		cfg.AfterHoursEnd = 6
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Detector{
		repo:      repo,
		cfg:       cfg,
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the detector.
func (d *Detector) SetLogger(logger Logger) {
	d.logger = logger
}

// Analyze runs the pattern checks for one freshly written log entry.
//
// Detection failures are logged, never propagated: a broken detector
// must not fail the validation that triggered it.
func (d *Detector) Analyze(ctx context.Context, log *AccessLog) {
	if log.Result.Denial() {
		if err := d.checkFailedAttempts(ctx, log); err != nil {
			d.logger.Error("failed-attempt check", "door_id", log.DoorID, "error", err)
		}
	}

	if log.Result.Allowed() {
		if err := d.checkAfterHours(ctx, log); err != nil {
			d.logger.Error("after-hours check", "door_id", log.DoorID, "error", err)
		}
	}
}

// checkFailedAttempts raises MULTIPLE_FAILED_ATTEMPTS when the denial
// count for the door reaches the threshold.
//
// The equality check is the dedup: the alert fires on the write that
// brings the trailing-window count to exactly the threshold. Later
// failures in the same window push the count past the threshold and do
// not match.
func (d *Detector) checkFailedAttempts(ctx context.Context, log *AccessLog) error {
	since := log.CreatedAt.Add(-d.cfg.FailedAttemptWindow)

	count, err := d.repo.CountFailuresSince(ctx, log.DoorID, since)
	if err != nil {
		return fmt.Errorf("counting recent failures: %w", err)
	}

	if count != d.cfg.FailedAttemptThreshold {
		return nil
	}

	alert := &Alert{
		Type:       AlertMultipleFailedAttempts,
		BuildingID: log.BuildingID,
		DoorID:     &log.DoorID,
		Details: map[string]any{
			"failure_count":  count,
			"window_minutes": d.cfg.FailedAttemptWindow.Minutes(),
			"last_result":    string(log.Result),
		},
	}

	return d.raise(ctx, alert)
}

// checkAfterHours raises AFTER_HOURS_ACCESS for successes outside
// normal hours. The hour is read in the site timezone; bounds are
// exclusive: a success at exactly AfterHoursEnd (06:00) or
// AfterHoursStart (22:xx) is in hours.
func (d *Detector) checkAfterHours(ctx context.Context, log *AccessLog) error {
	hour := log.CreatedAt.In(d.cfg.Location).Hour()
	if hour >= d.cfg.AfterHoursEnd && hour <= d.cfg.AfterHoursStart {
		return nil
	}

	alert := &Alert{
		Type:       AlertAfterHoursAccess,
		BuildingID: log.BuildingID,
		DoorID:     &log.DoorID,
		Details: map[string]any{
			"hour":        hour,
			"entity_type": log.EntityType,
			"result":      string(log.Result),
		},
	}
	if log.EntityID != nil {
		alert.Details["entity_id"] = *log.EntityID
	}

	return d.raise(ctx, alert)
}

// raise persists the alert and publishes the high-priority event.
func (d *Detector) raise(ctx context.Context, alert *Alert) error {
	if err := d.repo.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("persisting alert: %w", err)
	}

	d.logger.Warn("security alert raised",
		"alert_id", alert.ID,
		"type", alert.Type,
		"building_id", alert.BuildingID,
		"door_id", alert.DoorID,
	)

	if d.publisher != nil {
		data := map[string]any{
			"alert_id":    alert.ID,
			"alert_type":  string(alert.Type),
			"building_id": alert.BuildingID,
			"details":     alert.Details,
		}
		aggregateID := alert.BuildingID
		if alert.DoorID != nil {
			data["door_id"] = *alert.DoorID
			aggregateID = *alert.DoorID
		}

		e := events.NewHighPriority(events.TypeSecurityAlert, aggregateID, data)
		if err := d.publisher.Publish(ctx, e); err != nil {
			d.logger.Error("publishing alert event", "alert_id", alert.ID, "error", err)
		}
	}

	return nil
}

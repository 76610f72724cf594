package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finchsec/doorman-core/internal/access"
	"github.com/finchsec/doorman-core/internal/audit"
	"github.com/finchsec/doorman-core/internal/credential"
	"github.com/finchsec/doorman-core/internal/door"
	"github.com/finchsec/doorman-core/internal/events"
)

// Request is one credential presentation to validate.
type Request struct {
	// BuildingID scopes the credential lookup.
	BuildingID string

	// DoorID is the door being opened.
	DoorID string

	// Method is the presentation method ("pin", "card", "emergency").
	Method string

	// Credential is the raw presented credential (PIN digits or an
	// emergency override code).
	Credential string

	// UserID and VisitorID attribute the attempt when the caller knows
	// the identity (API-originated requests). Reader-originated requests
	// leave both empty; identity comes from the matched credential.
	UserID    *string
	VisitorID *string
}

// Result is the validation decision.
type Result struct {
	// Allowed indicates whether access was granted.
	Allowed bool `json:"allowed"`

	// Code classifies the outcome, matching the access log result.
	Code audit.Result `json:"code"`

	// AccessID is the matched credential's id, when one matched.
	AccessID string `json:"access_id,omitempty"`

	// Message is the human-readable decision explanation.
	Message string `json:"message"`
}

// DoorDirectory resolves doors. Satisfied by *door.Registry.
type DoorDirectory interface {
	GetDoor(ctx context.Context, id string) (*door.Door, error)
	GetDoorByDevice(ctx context.Context, deviceID string) (*door.Door, error)
}

// AccessStore resolves and consumes credentials. Satisfied by the
// access repository.
type AccessStore interface {
	GetByCredential(ctx context.Context, buildingID, pin string) (*access.Access, error)
	IncrementUsage(ctx context.Context, id string) error
}

// AuditWriter appends access log entries. Satisfied by the audit
// repository.
type AuditWriter interface {
	Create(ctx context.Context, log *audit.AccessLog) error
}

// Analyzer runs security pattern checks after each log write.
// Satisfied by *audit.Detector.
type Analyzer interface {
	Analyze(ctx context.Context, log *audit.AccessLog)
}

// EventPublisher publishes validation outcome events. Satisfied by the
// events bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// MetricsWriter records access events for trend analysis. Satisfied by
// the influxdb client.
type MetricsWriter interface {
	WriteAccessEvent(buildingID, doorID, method, result string, allowed bool)
}

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

// Service runs the validation pipeline.
type Service struct {
	doors    DoorDirectory
	accesses AccessStore
	logs     AuditWriter

	detector  Analyzer       // optional
	publisher EventPublisher // optional
	metrics   MetricsWriter  // optional

	now    func() time.Time
	logger Logger
}

// ServiceOptions holds the collaborators for creating a Service.
type ServiceOptions struct {
	// Doors resolves doors. Required.
	Doors DoorDirectory

	// Accesses resolves credentials. Required.
	Accesses AccessStore

	// Logs appends the audit trail. Required.
	Logs AuditWriter

	// Detector is the optional security pattern analyzer.
	Detector Analyzer

	// Events is the optional domain event publisher.
	Events EventPublisher

	// Metrics is the optional time-series recorder.
	Metrics MetricsWriter

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time

	// Logger is an optional structured logger.
	Logger Logger
}

// NewService creates a validation service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Doors == nil {
		return nil, fmt.Errorf("door directory is required")
	}
	if opts.Accesses == nil {
		return nil, fmt.Errorf("access store is required")
	}
	if opts.Logs == nil {
		return nil, fmt.Errorf("audit writer is required")
	}

	s := &Service{
		doors:     opts.Doors,
		accesses:  opts.Accesses,
		logs:      opts.Logs,
		detector:  opts.Detector,
		publisher: opts.Events,
		metrics:   opts.Metrics,
		now:       opts.Now,
		logger:    noopLogger{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = opts.Logger
	}
	return s, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Validate runs the decision pipeline for one credential presentation.
//
// The checks run in a fixed order so the recorded denial reason is
// deterministic: door accessibility, method support, emergency codes,
// credential lookup, credential lifecycle, door grant, schedule. The
// first failing check decides the outcome.
//
// Exactly one access log entry is written and one event published per
// call. Infrastructure faults return ErrInternal after a best-effort
// unknown_error log entry.
func (s *Service) Validate(ctx context.Context, req Request) (*Result, error) {
	now := s.now().UTC()

	// 1. Door must exist and be electronically reachable.
	d, err := s.doors.GetDoor(ctx, req.DoorID)
	if err != nil {
		if errors.Is(err, door.ErrNotFound) {
			return s.deny(ctx, req, nil, now, audit.ResultDoorOffline, "door not found"), nil
		}
		return nil, s.fault(ctx, req, now, fmt.Errorf("looking up door: %w", err))
	}
	if !d.IsAccessible() {
		return s.deny(ctx, req, nil, now, audit.ResultDoorOffline,
			fmt.Sprintf("door is %s", d.Status)), nil
	}

	// 2. The door must accept the presentation method.
	method := door.AccessMethod(req.Method)
	if !method.Valid() || !d.SupportsMethod(method) {
		return s.deny(ctx, req, nil, now, audit.ResultDenied,
			fmt.Sprintf("method %q not supported on this door", req.Method)), nil
	}

	// 3. Emergency codes bypass the credential store entirely.
	if method == door.MethodEmergency {
		if d.MatchesEmergencyCode(req.Credential) {
			return s.grant(ctx, req, nil, d, now, audit.ResultEmergency, "emergency override accepted"), nil
		}
		return s.deny(ctx, req, nil, now, audit.ResultDenied, "emergency code not recognised"), nil
	}

	// 4. Resolve the credential. Malformed PINs skip the lookup.
	if err := credential.Validate(req.Credential); err != nil {
		return s.deny(ctx, req, nil, now, audit.ResultInvalidPIN, "invalid credential"), nil
	}

	acc, err := s.accesses.GetByCredential(ctx, req.BuildingID, req.Credential)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return s.deny(ctx, req, nil, now, audit.ResultInvalidPIN, "invalid credential"), nil
		}
		return nil, s.fault(ctx, req, now, fmt.Errorf("resolving credential: %w", err))
	}

	// 5. Credential lifecycle: window, PIN expiry, usage, status.
	if !acc.IsValid(now) {
		switch {
		case acc.WindowExpired(now) || credential.Expired(acc.PINExpiresAt, now):
			return s.deny(ctx, req, acc, now, audit.ResultExpired, "credential expired"), nil
		case acc.UsageExhausted():
			return s.deny(ctx, req, acc, now, audit.ResultMaxUsageReached, "usage limit reached"), nil
		default:
			return s.deny(ctx, req, acc, now, audit.ResultDenied,
				fmt.Sprintf("credential is %s", acc.Status)), nil
		}
	}

	// 6. Credential must grant this specific door.
	if !acc.GrantsDoor(d.ID) {
		return s.deny(ctx, req, acc, now, audit.ResultDenied, "door not permitted for this credential"), nil
	}

	// 7. Schedule: outside unlocked hours the credential needs the
	// schedule override permission.
	inSchedule := d.ShouldBeUnlocked(now) || d.Status == door.StatusUnlocked
	if !inSchedule && !acc.HasPermission(access.PermissionOverrideSchedule) {
		return s.deny(ctx, req, acc, now, audit.ResultOutsideSchedule, "outside permitted schedule"), nil
	}

	// 8. Consume one use. The guarded increment is the arbiter for
	// concurrent validations racing on the last use.
	if err := s.accesses.IncrementUsage(ctx, acc.ID); err != nil {
		if errors.Is(err, access.ErrUsageExhausted) {
			return s.deny(ctx, req, acc, now, audit.ResultMaxUsageReached, "usage limit reached"), nil
		}
		return nil, s.fault(ctx, req, now, fmt.Errorf("incrementing usage: %w", err))
	}

	return s.grant(ctx, req, acc, d, now, audit.ResultSuccess, "access granted"), nil
}

// ValidateDevice validates a reader-originated presentation, resolving
// the door from the controller id. Wire this to the device channel's
// access handler.
func (s *Service) ValidateDevice(ctx context.Context, deviceID, method, rawCredential string) (*Result, error) {
	d, err := s.doors.GetDoorByDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, door.ErrNotFound) {
			s.logger.Warn("access request from unmapped controller", "device_id", deviceID)
			return &Result{
				Allowed: false,
				Code:    audit.ResultDenied,
				Message: "controller not mapped to a door",
			}, nil
		}
		return nil, fmt.Errorf("%w: resolving controller %s: %v", ErrInternal, deviceID, err)
	}

	return s.Validate(ctx, Request{
		BuildingID: d.BuildingID,
		DoorID:     d.ID,
		Method:     method,
		Credential: rawCredential,
	})
}

// grant records an allowed outcome.
func (s *Service) grant(ctx context.Context, req Request, acc *access.Access, d *door.Door, now time.Time, code audit.Result, message string) *Result {
	result := &Result{Allowed: true, Code: code, Message: message}
	if acc != nil {
		result.AccessID = acc.ID
	}

	log := s.buildLog(req, acc, now, code, nil)
	s.record(ctx, req, log)

	eventType := events.TypeAccessGranted
	data := map[string]any{
		"door_id":     req.DoorID,
		"building_id": req.BuildingID,
		"method":      req.Method,
		"result":      string(code),
	}
	if acc != nil {
		data["access_id"] = acc.ID
		data["entity_type"] = acc.EntityType()
		if id := acc.EntityID(); id != nil {
			data["entity_id"] = *id
		}
	}

	var e events.Event
	if code == audit.ResultEmergency {
		eventType = events.TypeEmergencyAccess
		e = events.NewHighPriority(eventType, req.DoorID, data)
	} else {
		e = events.New(eventType, req.DoorID, data)
	}
	s.publish(ctx, e)

	s.logger.Info("access granted",
		"door_id", req.DoorID,
		"method", req.Method,
		"result", string(code),
		"access_id", result.AccessID,
	)
	return result
}

// deny records a denied outcome.
func (s *Service) deny(ctx context.Context, req Request, acc *access.Access, now time.Time, code audit.Result, message string) *Result {
	result := &Result{Allowed: false, Code: code, Message: message}
	if acc != nil {
		result.AccessID = acc.ID
	}

	log := s.buildLog(req, acc, now, code, &message)
	s.record(ctx, req, log)

	data := map[string]any{
		"door_id":     req.DoorID,
		"building_id": req.BuildingID,
		"method":      req.Method,
		"result":      string(code),
		"reason":      message,
	}
	s.publish(ctx, events.New(events.TypeAccessDenied, req.DoorID, data))

	s.logger.Info("access denied",
		"door_id", req.DoorID,
		"method", req.Method,
		"result", string(code),
		"reason", message,
	)
	return result
}

// fault records an infrastructure failure: best-effort unknown_error
// log entry, then ErrInternal to the caller. No event is published for
// faults; they are not access decisions.
func (s *Service) fault(ctx context.Context, req Request, now time.Time, cause error) error {
	s.logger.Error("validation fault",
		"door_id", req.DoorID,
		"building_id", req.BuildingID,
		"error", cause,
	)

	message := "internal error"
	log := s.buildLog(req, nil, now, audit.ResultUnknownError, &message)
	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error("writing fault log entry", "door_id", req.DoorID, "error", err)
	}

	return fmt.Errorf("%w: %v", ErrInternal, cause)
}

// buildLog assembles the access log entry for one validation. Identity
// comes from the matched credential when one resolved, falling back to
// the request's attribution.
func (s *Service) buildLog(req Request, acc *access.Access, now time.Time, code audit.Result, failureReason *string) *audit.AccessLog {
	entityType := "unknown"
	var entityID *string

	switch {
	case acc != nil:
		entityType = acc.EntityType()
		entityID = acc.EntityID()
	case req.UserID != nil:
		entityType = "user"
		entityID = req.UserID
	case req.VisitorID != nil:
		entityType = "visitor"
		entityID = req.VisitorID
	}

	return &audit.AccessLog{
		BuildingID:    req.BuildingID,
		DoorID:        req.DoorID,
		EntityType:    entityType,
		EntityID:      entityID,
		Method:        req.Method,
		Result:        code,
		FailureReason: failureReason,
		CreatedAt:     now,
	}
}

// record writes the log entry, runs the detector, and mirrors the
// outcome to the time-series store. Log write failures are logged but
// do not change the decision already made.
func (s *Service) record(ctx context.Context, req Request, log *audit.AccessLog) {
	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error("writing access log", "door_id", req.DoorID, "error", err)
		return
	}

	if s.detector != nil {
		s.detector.Analyze(ctx, log)
	}
	if s.metrics != nil {
		s.metrics.WriteAccessEvent(req.BuildingID, req.DoorID, req.Method, string(log.Result), log.Result.Allowed())
	}
}

// publish emits the outcome event, logging failures.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Error("publishing validation event", "type", e.Type, "error", err)
	}
}

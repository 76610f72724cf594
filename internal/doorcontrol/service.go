package doorcontrol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finchsec/doorman-core/internal/audit"
	"github.com/finchsec/doorman-core/internal/devicecomm"
	"github.com/finchsec/doorman-core/internal/door"
	"github.com/finchsec/doorman-core/internal/events"
)

// controlMethod is the audit log method recorded for control actions,
// distinguishing them from reader-originated access attempts.
const controlMethod = "control"

// DoorRegistry provides door state. Satisfied by *door.Registry.
type DoorRegistry interface {
	GetDoor(ctx context.Context, id string) (*door.Door, error)
	SetDoorStatus(ctx context.Context, id string, status door.Status) error
	ListEmergencyExits(ctx context.Context, buildingID string) ([]door.Door, error)
}

// DeviceChannel mirrors lock-state changes to the door's controller.
// Satisfied by *devicecomm.Service.
type DeviceChannel interface {
	SendCommand(ctx context.Context, deviceID, command string, params map[string]any) (*devicecomm.ResponseMessage, error)
}

// AuditWriter appends access log entries. Satisfied by the audit
// repository.
type AuditWriter interface {
	Create(ctx context.Context, log *audit.AccessLog) error
}

// EventPublisher publishes lock-state events. Satisfied by the events
// bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// MetricsWriter records lock-state changes for trend analysis.
// Satisfied by the influxdb client.
type MetricsWriter interface {
	WriteDoorState(buildingID, doorID, status string)
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

// Service executes door control commands.
//
// Thread safety: all methods are safe for concurrent use.
type Service struct {
	registry DoorRegistry
	devices  DeviceChannel  // optional
	logs     AuditWriter    // optional
	events   EventPublisher // optional
	metrics  MetricsWriter  // optional

	// relock timers keyed by door id; a new timed unlock replaces any
	// timer already pending for the same door.
	relockTimers map[string]*time.Timer
	relockMu     sync.Mutex

	// Service-level context for relock timers and cascade workers, so
	// they are cancelled on Stop rather than tied to request contexts.
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
	wg        sync.WaitGroup

	logger Logger
}

// ServiceOptions holds the collaborators for creating a Service.
type ServiceOptions struct {
	// Registry provides door state. Required.
	Registry DoorRegistry

	// Devices mirrors state changes to controllers. Optional; without
	// it the service manages domain state only.
	Devices DeviceChannel

	// Logs appends the audit trail. Optional.
	Logs AuditWriter

	// Events is the optional domain event publisher.
	Events EventPublisher

	// Metrics is the optional time-series recorder.
	Metrics MetricsWriter

	// Logger is an optional structured logger.
	Logger Logger
}

// NewService creates a door control service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("door registry is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		registry:     opts.Registry,
		devices:      opts.Devices,
		logs:         opts.Logs,
		events:       opts.Events,
		metrics:      opts.Metrics,
		relockTimers: make(map[string]*time.Timer),
		ctx:          ctx,
		ctxCancel:    cancel,
		logger:       noopLogger{},
	}
	if opts.Logger != nil {
		s.logger = opts.Logger
	}
	return s, nil
}

// Stop cancels pending relock timers and waits for cascade workers.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.ctxCancel()

		s.relockMu.Lock()
		for id, timer := range s.relockTimers {
			timer.Stop()
			delete(s.relockTimers, id)
		}
		s.relockMu.Unlock()

		s.wg.Wait()
	})
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Execute runs one control command.
//
// The domain transition happens first and is authoritative; the
// controller mirror happens second. A rejected mirror flips Success but
// never rolls the domain state back — the controller resynchronises on
// its next reconnect.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.DoorID == "" {
		return nil, fmt.Errorf("%w: door id is required", ErrInvalidCommand)
	}
	if !cmd.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, cmd.Action)
	}

	d, err := s.registry.GetDoor(ctx, cmd.DoorID)
	if err != nil {
		return nil, fmt.Errorf("looking up door: %w", err)
	}

	if cmd.Action == ActionEmergencyUnlock {
		return s.emergencyUnlock(ctx, cmd, d)
	}

	action := cmd.Action
	if action == ActionToggle {
		if d.Status == door.StatusLocked {
			action = ActionUnlock
		} else {
			action = ActionLock
		}
	}

	switch action {
	case ActionLock:
		err = d.Lock()
	case ActionUnlock:
		err = d.Unlock()
	}

	switch {
	case err == nil:
		// transition accepted
	case errors.Is(err, door.ErrAlreadyLocked), errors.Is(err, door.ErrAlreadyUnlocked):
		// Idempotent no-op: desired state already holds, nothing to
		// mirror or record.
		return &Result{
			Success: true,
			Status:  d.Status,
			Message: fmt.Sprintf("door already %s", d.Status),
		}, nil
	default:
		return &Result{
			Success: false,
			Status:  d.Status,
			Message: fmt.Sprintf("door is %s and cannot be %sed", d.Status, action),
		}, nil
	}

	if err := s.registry.SetDoorStatus(ctx, d.ID, d.Status); err != nil {
		return nil, fmt.Errorf("persisting door status: %w", err)
	}

	result := &Result{
		Success: true,
		Status:  d.Status,
		Message: fmt.Sprintf("door %s", d.Status),
	}

	s.mirrorToController(ctx, d, string(action), nil, result)
	s.recordControl(ctx, cmd, d, audit.ResultSuccess)
	s.publishLockState(ctx, d, cmd.UserID)

	if action == ActionUnlock && cmd.Duration > 0 {
		s.scheduleRelock(d.ID, cmd.Duration)
		result.Message = fmt.Sprintf("door unlocked for %s", cmd.Duration)
	}

	return result, nil
}

// emergencyUnlock unconditionally unlocks the target door and cascades
// to every other emergency exit in the building. Cascade failures are
// isolated per door.
func (s *Service) emergencyUnlock(ctx context.Context, cmd Command, d *door.Door) (*Result, error) {
	d.EmergencyUnlock()

	if err := s.registry.SetDoorStatus(ctx, d.ID, d.Status); err != nil {
		return nil, fmt.Errorf("persisting emergency status: %w", err)
	}

	result := &Result{
		Success: true,
		Status:  d.Status,
		Message: "emergency unlock engaged",
	}

	s.mirrorToController(ctx, d, string(ActionUnlock), map[string]any{"emergency": true}, result)
	s.recordControl(ctx, cmd, d, audit.ResultEmergency)

	s.logger.Warn("emergency unlock",
		"door_id", d.ID,
		"building_id", d.BuildingID,
		"user_id", cmd.UserID,
		"reason", cmd.Reason,
	)

	cascaded, failed := s.cascade(ctx, cmd, d)
	result.Cascaded = cascaded
	result.CascadeFailures = failed
	if failed > 0 {
		result.Message = fmt.Sprintf("emergency unlock engaged, %d of %d cascade doors failed",
			failed, cascaded+failed)
	}

	s.publishEmergency(ctx, cmd, d, cascaded, failed)
	return result, nil
}

// cascade unlocks every other emergency exit in the building
// concurrently. Each door is handled in isolation: a failure is
// counted and logged, never propagated to the siblings.
func (s *Service) cascade(ctx context.Context, cmd Command, origin *door.Door) (cascaded, failed int) {
	exits, err := s.registry.ListEmergencyExits(ctx, origin.BuildingID)
	if err != nil {
		s.logger.Error("listing emergency exits for cascade",
			"building_id", origin.BuildingID,
			"error", err,
		)
		return 0, 0
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range exits {
		exit := exits[i]
		if exit.ID == origin.ID {
			continue
		}

		wg.Add(1)
		s.wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.wg.Done()

			err := s.cascadeOne(s.ctx, cmd, &exit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				s.logger.Error("cascade door failed", "door_id", exit.ID, "error", err)
				return
			}
			cascaded++
		}()
	}

	wg.Wait()
	return cascaded, failed
}

// cascadeOne unlocks a single cascade target.
func (s *Service) cascadeOne(ctx context.Context, cmd Command, exit *door.Door) error {
	exit.EmergencyUnlock()

	if err := s.registry.SetDoorStatus(ctx, exit.ID, exit.Status); err != nil {
		return fmt.Errorf("persisting cascade status: %w", err)
	}

	if s.devices != nil && exit.DeviceID != nil {
		_, err := s.devices.SendCommand(ctx, *exit.DeviceID, string(ActionUnlock), map[string]any{"emergency": true})
		if err != nil && !errors.Is(err, devicecomm.ErrQueued) {
			// Domain state stands; report the hardware failure so the
			// cascade result reflects doors that may still be latched.
			return fmt.Errorf("mirroring to controller: %w", err)
		}
	}

	s.recordControl(ctx, cmd, exit, audit.ResultEmergency)
	if s.metrics != nil {
		s.metrics.WriteDoorState(exit.BuildingID, exit.ID, string(exit.Status))
	}
	return nil
}

// mirrorToController sends the hardware command for a transition. A
// queued delivery (broker offline) is not a failure: core state is
// authoritative and the controller resynchronises when it returns. A
// rejection flips Success without rolling back.
func (s *Service) mirrorToController(ctx context.Context, d *door.Door, command string, params map[string]any, result *Result) {
	if s.devices == nil || d.DeviceID == nil {
		return
	}

	resp, err := s.devices.SendCommand(ctx, *d.DeviceID, command, params)
	switch {
	case errors.Is(err, devicecomm.ErrQueued):
		s.logger.Warn("controller command queued",
			"door_id", d.ID,
			"device_id", *d.DeviceID,
			"command", command,
		)
	case err != nil:
		result.Success = false
		result.Message = fmt.Sprintf("door %s in core, controller unreachable", d.Status)
		s.logger.Error("controller command failed",
			"door_id", d.ID,
			"device_id", *d.DeviceID,
			"command", command,
			"error", err,
		)
	case resp != nil && !resp.Success:
		result.Success = false
		result.Message = fmt.Sprintf("door %s in core, controller rejected command", d.Status)
		s.logger.Error("controller rejected command",
			"door_id", d.ID,
			"device_id", *d.DeviceID,
			"command", command,
			"response", resp.Error,
		)
	}

	if s.metrics != nil {
		s.metrics.WriteDoorState(d.BuildingID, d.ID, string(d.Status))
	}
}

// scheduleRelock arms (or re-arms) the automatic relock for a timed
// unlock.
func (s *Service) scheduleRelock(doorID string, after time.Duration) {
	s.relockMu.Lock()
	defer s.relockMu.Unlock()

	if timer, ok := s.relockTimers[doorID]; ok {
		timer.Stop()
	}

	s.relockTimers[doorID] = time.AfterFunc(after, func() {
		s.relockMu.Lock()
		delete(s.relockTimers, doorID)
		s.relockMu.Unlock()

		if s.ctx.Err() != nil {
			return
		}

		if _, err := s.Execute(s.ctx, Command{
			DoorID: doorID,
			Action: ActionLock,
			UserID: "system",
			Reason: "timed unlock elapsed",
		}); err != nil {
			s.logger.Error("automatic relock failed", "door_id", doorID, "error", err)
		}
	})
}

// recordControl appends the audit trail entry for a control action.
func (s *Service) recordControl(ctx context.Context, cmd Command, d *door.Door, code audit.Result) {
	if s.logs == nil {
		return
	}

	entityType := "user"
	if cmd.UserID == "" || cmd.UserID == "system" {
		entityType = "system"
	}

	log := &audit.AccessLog{
		BuildingID: d.BuildingID,
		DoorID:     d.ID,
		EntityType: entityType,
		Method:     controlMethod,
		Result:     code,
		CreatedAt:  time.Now().UTC(),
	}
	if cmd.UserID != "" && cmd.UserID != "system" {
		userID := cmd.UserID
		log.EntityID = &userID
	}

	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error("writing control log", "door_id", d.ID, "error", err)
	}
}

// publishLockState emits door_locked / door_unlocked.
func (s *Service) publishLockState(ctx context.Context, d *door.Door, userID string) {
	if s.events == nil {
		return
	}

	eventType := events.TypeDoorLocked
	if d.Status == door.StatusUnlocked {
		eventType = events.TypeDoorUnlocked
	}

	data := map[string]any{
		"door_id":     d.ID,
		"building_id": d.BuildingID,
		"status":      string(d.Status),
	}
	if userID != "" {
		data["user_id"] = userID
	}

	if err := s.events.Publish(ctx, events.New(eventType, d.ID, data)); err != nil {
		s.logger.Error("publishing lock-state event", "door_id", d.ID, "error", err)
	}
}

// publishEmergency emits the high-priority emergency event for an
// emergency unlock and its cascade.
func (s *Service) publishEmergency(ctx context.Context, cmd Command, d *door.Door, cascaded, failed int) {
	if s.events == nil {
		return
	}

	data := map[string]any{
		"door_id":          d.ID,
		"building_id":      d.BuildingID,
		"cascaded":         cascaded,
		"cascade_failures": failed,
	}
	if cmd.UserID != "" {
		data["user_id"] = cmd.UserID
	}
	if cmd.Reason != "" {
		data["reason"] = cmd.Reason
	}

	if err := s.events.Publish(ctx, events.NewHighPriority(events.TypeEmergencyAccess, d.ID, data)); err != nil {
		s.logger.Error("publishing emergency event", "door_id", d.ID, "error", err)
	}
}

package door

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides door management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Door // Cached doors by ID
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a new door registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Door),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all doors from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	doors, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading doors: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Door, len(doors))
	for i := range doors {
		d := doors[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("door cache refreshed", "count", len(doors))
	return nil
}

// GetDoor retrieves a door by ID.
// Returns ErrNotFound if the door does not exist.
// The returned door is a deep copy; callers can safely modify it.
func (r *Registry) GetDoor(ctx context.Context, id string) (*Door, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new door not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDoors retrieves all doors.
// The returned doors are deep copies; callers can safely modify them.
func (r *Registry) ListDoors(ctx context.Context) ([]Door, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		doors := make([]Door, 0, len(r.cache))
		for _, d := range r.cache {
			doors = append(doors, *d.DeepCopy())
		}
		return doors, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// ListByBuilding retrieves all doors in a specific building.
// The returned doors are deep copies; callers can safely modify them.
func (r *Registry) ListByBuilding(ctx context.Context, buildingID string) ([]Door, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var doors []Door
		for _, d := range r.cache {
			if d.BuildingID == buildingID {
				doors = append(doors, *d.DeepCopy())
			}
		}
		return doors, nil
	}

	return r.repo.ListByBuilding(ctx, buildingID)
}

// ListEmergencyExits retrieves all emergency-exit doors in a building.
// The returned doors are deep copies; callers can safely modify them.
func (r *Registry) ListEmergencyExits(ctx context.Context, buildingID string) ([]Door, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var doors []Door
		for _, d := range r.cache {
			if d.BuildingID == buildingID && d.IsEmergencyExit() {
				doors = append(doors, *d.DeepCopy())
			}
		}
		return doors, nil
	}

	return r.repo.ListEmergencyExits(ctx, buildingID)
}

// GetDoorByDevice retrieves the door bound to a physical controller.
// The returned door is a deep copy; callers can safely modify it.
func (r *Registry) GetDoorByDevice(ctx context.Context, deviceID string) (*Door, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, d := range r.cache {
		if d.DeviceID != nil && *d.DeviceID == deviceID {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrNotFound
}

// CreateDoor creates a new door.
// It validates the door, generates an ID if needed, and persists it.
func (r *Registry) CreateDoor(ctx context.Context, d *Door) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Status == "" {
		d.Status = StatusLocked
	}
	if d.Type == "" {
		d.Type = TypeStandard
	}

	if err := validateDoor(d); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("door created", "id", d.ID, "name", d.Name, "building_id", d.BuildingID)
	return nil
}

// UpdateDoor updates an existing door.
func (r *Registry) UpdateDoor(ctx context.Context, d *Door) error {
	if err := validateDoor(d); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("door updated", "id", d.ID, "name", d.Name)
	return nil
}

// DeleteDoor removes a door.
func (r *Registry) DeleteDoor(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("door deleted", "id", id)
	return nil
}

// SetDoorStatus applies a lock-state transition and persists it.
// This is the write path for lock/unlock operations; the transition
// itself is validated by the caller through Door.Lock/Unlock.
func (r *Registry) SetDoorStatus(ctx context.Context, id string, status Status) error {
	if err := r.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Status = status
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("door status updated", "id", id, "status", status)
	return nil
}

// DoorCount returns the number of cached doors.
func (r *Registry) DoorCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// validateDoor checks required fields before persistence.
func validateDoor(d *Door) error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDoor)
	}
	if d.BuildingID == "" {
		return fmt.Errorf("%w: building_id is required", ErrInvalidDoor)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	return nil
}

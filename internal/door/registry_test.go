package door

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockRepository is a hand-rolled Repository for registry tests.
type mockRepository struct {
	mu    sync.Mutex
	doors map[string]*Door

	listCalls int
	getCalls  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{doors: make(map[string]*Door)}
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*Door, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	d, ok := m.doors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockRepository) List(ctx context.Context) ([]Door, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	doors := make([]Door, 0, len(m.doors))
	for _, d := range m.doors {
		doors = append(doors, *d.DeepCopy())
	}
	return doors, nil
}

func (m *mockRepository) ListByBuilding(ctx context.Context, buildingID string) ([]Door, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var doors []Door
	for _, d := range m.doors {
		if d.BuildingID == buildingID {
			doors = append(doors, *d.DeepCopy())
		}
	}
	return doors, nil
}

func (m *mockRepository) ListEmergencyExits(ctx context.Context, buildingID string) ([]Door, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var doors []Door
	for _, d := range m.doors {
		if d.BuildingID == buildingID && d.IsEmergencyExit() {
			doors = append(doors, *d.DeepCopy())
		}
	}
	return doors, nil
}

func (m *mockRepository) Create(ctx context.Context, d *Door) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.doors[d.ID]; exists {
		return ErrExists
	}
	m.doors[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockRepository) Update(ctx context.Context, d *Door) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.doors[d.ID]; !exists {
		return ErrNotFound
	}
	m.doors[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.doors[id]; !exists {
		return ErrNotFound
	}
	delete(m.doors, id)
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, exists := m.doors[id]
	if !exists {
		return ErrNotFound
	}
	d.Status = status
	return nil
}

func TestRegistry_RefreshCachePopulates(t *testing.T) {
	repo := newMockRepository()
	repo.doors["door-1"] = testDoor("door-1", "One", "bld-a")
	repo.doors["door-2"] = testDoor("door-2", "Two", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if reg.DoorCount() != 2 {
		t.Errorf("DoorCount() = %d, want 2", reg.DoorCount())
	}

	// Cached get must not hit the repository.
	before := repo.getCalls
	if _, err := reg.GetDoor(context.Background(), "door-1"); err != nil {
		t.Fatalf("GetDoor() error = %v", err)
	}
	if repo.getCalls != before {
		t.Error("cached GetDoor should not query the repository")
	}
}

func TestRegistry_GetDoorReturnsCopy(t *testing.T) {
	repo := newMockRepository()
	repo.doors["door-1"] = testDoor("door-1", "One", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	d1, _ := reg.GetDoor(context.Background(), "door-1")
	d1.Name = "Mutated"
	d1.Schedules[0].Priority = 999

	d2, _ := reg.GetDoor(context.Background(), "door-1")
	if d2.Name != "One" {
		t.Error("mutation of returned door leaked into cache")
	}
	if d2.Schedules[0].Priority == 999 {
		t.Error("schedule mutation leaked into cache")
	}
}

func TestRegistry_CreateDoor(t *testing.T) {
	repo := newMockRepository()
	reg := NewRegistry(repo)

	d := &Door{Name: "New Door", BuildingID: "bld-a"}
	if err := reg.CreateDoor(context.Background(), d); err != nil {
		t.Fatalf("CreateDoor() error = %v", err)
	}

	if d.ID == "" {
		t.Error("CreateDoor should generate an id")
	}
	if d.Status != StatusLocked {
		t.Errorf("default status = %s, want locked", d.Status)
	}
	if d.Type != TypeStandard {
		t.Errorf("default type = %s, want standard", d.Type)
	}

	got, err := reg.GetDoor(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDoor() error = %v", err)
	}
	if got.Name != "New Door" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestRegistry_CreateDoor_Validation(t *testing.T) {
	reg := NewRegistry(newMockRepository())

	tests := []struct {
		name string
		d    *Door
	}{
		{"missing name", &Door{BuildingID: "bld-a"}},
		{"missing building", &Door{Name: "Door"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.CreateDoor(context.Background(), tt.d); !errors.Is(err, ErrInvalidDoor) {
				t.Errorf("expected ErrInvalidDoor, got %v", err)
			}
		})
	}
}

func TestRegistry_SetDoorStatus_UpdatesCache(t *testing.T) {
	repo := newMockRepository()
	repo.doors["door-1"] = testDoor("door-1", "One", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if err := reg.SetDoorStatus(context.Background(), "door-1", StatusUnlocked); err != nil {
		t.Fatalf("SetDoorStatus() error = %v", err)
	}

	got, _ := reg.GetDoor(context.Background(), "door-1")
	if got.Status != StatusUnlocked {
		t.Errorf("cached status = %s, want unlocked", got.Status)
	}
}

func TestRegistry_ListEmergencyExits_FromCache(t *testing.T) {
	repo := newMockRepository()
	exitDoor := testDoor("door-exit", "Exit", "bld-a")
	exitDoor.Type = TypeEmergencyExit
	repo.doors["door-exit"] = exitDoor
	repo.doors["door-std"] = testDoor("door-std", "Standard", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	exits, err := reg.ListEmergencyExits(context.Background(), "bld-a")
	if err != nil {
		t.Fatalf("ListEmergencyExits() error = %v", err)
	}
	if len(exits) != 1 || exits[0].ID != "door-exit" {
		t.Errorf("unexpected exits: %+v", exits)
	}
}

func TestRegistry_GetDoorByDevice(t *testing.T) {
	repo := newMockRepository()
	repo.doors["door-1"] = testDoor("door-1", "One", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	got, err := reg.GetDoorByDevice(context.Background(), "ctrl-door-1")
	if err != nil {
		t.Fatalf("GetDoorByDevice() error = %v", err)
	}
	if got.ID != "door-1" {
		t.Errorf("got door %s", got.ID)
	}

	if _, err := reg.GetDoorByDevice(context.Background(), "ctrl-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_DeleteDoor(t *testing.T) {
	repo := newMockRepository()
	repo.doors["door-1"] = testDoor("door-1", "One", "bld-a")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if err := reg.DeleteDoor(context.Background(), "door-1"); err != nil {
		t.Fatalf("DeleteDoor() error = %v", err)
	}
	if reg.DoorCount() != 0 {
		t.Errorf("DoorCount() = %d after delete", reg.DoorCount())
	}
	if _, err := reg.GetDoor(context.Background(), "door-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

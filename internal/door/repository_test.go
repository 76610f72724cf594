package door

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the doors table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE doors (
			id              TEXT PRIMARY KEY,
			building_id     TEXT NOT NULL,
			floor           TEXT,
			area            TEXT,
			name            TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'standard',
			status          TEXT NOT NULL DEFAULT 'locked',
			schedules       TEXT NOT NULL DEFAULT '[]',
			access_methods  TEXT NOT NULL DEFAULT '[]',
			emergency       TEXT NOT NULL DEFAULT '{}',
			device_id       TEXT,
			manufacturer    TEXT,
			model           TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);
		CREATE INDEX idx_doors_building ON doors(building_id);
		CREATE INDEX idx_doors_building_type ON doors(building_id, type);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDoor creates a door for testing.
func testDoor(id, name, buildingID string) *Door {
	deviceID := "ctrl-" + id
	return &Door{
		ID:         id,
		Name:       name,
		BuildingID: buildingID,
		Type:       TypeStandard,
		Status:     StatusLocked,
		Schedules: []Schedule{
			{Name: "office hours", Type: ScheduleScheduled, Days: []string{"MON", "TUE"}, Slots: []TimeSlot{{Start: "09:00", End: "17:00"}}, Priority: 5, Active: true},
		},
		AccessMethods: []AccessMethod{MethodPIN, MethodEmergency},
		Emergency:     EmergencySettings{UnlockOnFire: true, OverrideCodes: []string{"911911"}},
		DeviceID:      &deviceID,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates door successfully", func(t *testing.T) {
		d := testDoor("door-001", "Lobby Entrance", "bld-01")

		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "door-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Lobby Entrance" {
			t.Errorf("Name = %q, want %q", got.Name, "Lobby Entrance")
		}
		if got.Status != StatusLocked {
			t.Errorf("Status = %q, want locked", got.Status)
		}
		if len(got.Schedules) != 1 || got.Schedules[0].Name != "office hours" {
			t.Errorf("Schedules round-trip failed: %+v", got.Schedules)
		}
		if !got.Emergency.UnlockOnFire {
			t.Error("Emergency settings round-trip failed")
		}
		if got.DeviceID == nil || *got.DeviceID != "ctrl-door-001" {
			t.Errorf("DeviceID round-trip failed: %v", got.DeviceID)
		}
	})

	t.Run("returns error for duplicate ID", func(t *testing.T) {
		d := testDoor("door-dup", "First", "bld-01")
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("first Create() error = %v", err)
		}

		if err := repo.Create(ctx, testDoor("door-dup", "Second", "bld-01")); !errors.Is(err, ErrExists) {
			t.Errorf("expected ErrExists, got %v", err)
		}
	})

	t.Run("returns ErrNotFound for missing door", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "door-missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteRepository_ListByBuilding(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, d := range []*Door{
		testDoor("door-a1", "A Lobby", "bld-a"),
		testDoor("door-a2", "A Stairwell", "bld-a"),
		testDoor("door-b1", "B Lobby", "bld-b"),
	} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.ID, err)
		}
	}

	doors, err := repo.ListByBuilding(ctx, "bld-a")
	if err != nil {
		t.Fatalf("ListByBuilding() error = %v", err)
	}
	if len(doors) != 2 {
		t.Errorf("got %d doors, want 2", len(doors))
	}
}

func TestSQLiteRepository_ListEmergencyExits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	standard := testDoor("door-std", "Lobby", "bld-a")
	exitA := testDoor("door-exit-a", "North Exit", "bld-a")
	exitA.Type = TypeEmergencyExit
	exitB := testDoor("door-exit-b", "South Exit", "bld-a")
	exitB.Type = TypeEmergencyExit
	otherBuilding := testDoor("door-exit-c", "Other Exit", "bld-b")
	otherBuilding.Type = TypeEmergencyExit

	for _, d := range []*Door{standard, exitA, exitB, otherBuilding} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.ID, err)
		}
	}

	exits, err := repo.ListEmergencyExits(ctx, "bld-a")
	if err != nil {
		t.Fatalf("ListEmergencyExits() error = %v", err)
	}
	if len(exits) != 2 {
		t.Fatalf("got %d exits, want 2", len(exits))
	}
	for _, d := range exits {
		if d.Type != TypeEmergencyExit {
			t.Errorf("non-exit door %s in results", d.ID)
		}
		if d.BuildingID != "bld-a" {
			t.Errorf("door %s from wrong building", d.ID)
		}
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDoor("door-upd", "Old Name", "bld-01")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d.Name = "New Name"
	d.Schedules = append(d.Schedules, Schedule{Name: "lockdown", Type: ScheduleAlwaysLocked, Priority: 10, Active: true})
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "door-upd")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "New Name" {
		t.Errorf("Name = %q, want %q", got.Name, "New Name")
	}
	if len(got.Schedules) != 2 {
		t.Errorf("got %d schedules, want 2", len(got.Schedules))
	}

	t.Run("missing door", func(t *testing.T) {
		missing := testDoor("door-nope", "Ghost", "bld-01")
		if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDoor("door-st", "Status Door", "bld-01")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateStatus(ctx, "door-st", StatusUnlocked); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "door-st")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusUnlocked {
		t.Errorf("Status = %q, want unlocked", got.Status)
	}

	t.Run("rejects invalid status", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "door-st", "ajar"); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("missing door", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "door-nope", StatusLocked); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	d := testDoor("door-del", "Doomed", "bld-01")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, "door-del"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "door-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "door-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

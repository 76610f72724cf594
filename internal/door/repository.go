package door

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for door persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a door by its unique identifier.
	// Returns ErrNotFound if the door does not exist.
	GetByID(ctx context.Context, id string) (*Door, error)

	// List retrieves all doors.
	List(ctx context.Context) ([]Door, error)

	// ListByBuilding retrieves all doors in a specific building.
	ListByBuilding(ctx context.Context, buildingID string) ([]Door, error)

	// ListEmergencyExits retrieves all emergency-exit doors in a building.
	ListEmergencyExits(ctx context.Context, buildingID string) ([]Door, error)

	// Create inserts a new door.
	// Returns ErrExists if a door with the same ID already exists.
	Create(ctx context.Context, d *Door) error

	// Update modifies an existing door.
	// Returns ErrNotFound if the door does not exist.
	Update(ctx context.Context, d *Door) error

	// Delete removes a door by ID.
	// Returns ErrNotFound if the door does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus updates only the status column.
	// This is optimised for frequent lock-state changes.
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const doorColumns = `id, building_id, floor, area, name, type, status,
	schedules, access_methods, emergency, device_id, manufacturer, model,
	created_at, updated_at`

// GetByID retrieves a door by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Door, error) {
	query := `SELECT ` + doorColumns + ` FROM doors WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDoor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying door by id: %w", err)
	}
	return d, nil
}

// List retrieves all doors.
func (r *SQLiteRepository) List(ctx context.Context) ([]Door, error) {
	query := `SELECT ` + doorColumns + ` FROM doors ORDER BY name`
	return r.queryDoors(ctx, query)
}

// ListByBuilding retrieves all doors in a specific building.
func (r *SQLiteRepository) ListByBuilding(ctx context.Context, buildingID string) ([]Door, error) {
	query := `SELECT ` + doorColumns + ` FROM doors WHERE building_id = ? ORDER BY name`
	return r.queryDoors(ctx, query, buildingID)
}

// ListEmergencyExits retrieves all emergency-exit doors in a building.
func (r *SQLiteRepository) ListEmergencyExits(ctx context.Context, buildingID string) ([]Door, error) {
	query := `SELECT ` + doorColumns + ` FROM doors WHERE building_id = ? AND type = ? ORDER BY name`
	return r.queryDoors(ctx, query, buildingID, string(TypeEmergencyExit))
}

// Create inserts a new door.
func (r *SQLiteRepository) Create(ctx context.Context, d *Door) error {
	schedulesJSON, methodsJSON, emergencyJSON, err := marshalDoorJSON(d)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO doors (` + doorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		d.ID,
		d.BuildingID,
		nullableString(d.Floor),
		nullableString(d.Area),
		d.Name,
		string(d.Type),
		string(d.Status),
		schedulesJSON,
		methodsJSON,
		emergencyJSON,
		nullableString(d.DeviceID),
		nullableString(d.Manufacturer),
		nullableString(d.Model),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting door: %w", err)
	}

	return nil
}

// Update modifies an existing door.
func (r *SQLiteRepository) Update(ctx context.Context, d *Door) error {
	schedulesJSON, methodsJSON, emergencyJSON, err := marshalDoorJSON(d)
	if err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE doors SET
			building_id = ?, floor = ?, area = ?, name = ?, type = ?,
			status = ?, schedules = ?, access_methods = ?, emergency = ?,
			device_id = ?, manufacturer = ?, model = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		d.BuildingID,
		nullableString(d.Floor),
		nullableString(d.Area),
		d.Name,
		string(d.Type),
		string(d.Status),
		schedulesJSON,
		methodsJSON,
		emergencyJSON,
		nullableString(d.DeviceID),
		nullableString(d.Manufacturer),
		nullableString(d.Model),
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating door: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a door by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM doors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting door: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateStatus updates only the status column.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE doors SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(status), now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating door status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// queryDoors executes a query and returns a slice of doors.
func (r *SQLiteRepository) queryDoors(ctx context.Context, query string, args ...any) ([]Door, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying doors: %w", err)
	}
	defer rows.Close()

	var doors []Door
	for rows.Next() {
		d, err := scanDoor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning door: %w", err)
		}
		doors = append(doors, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doors: %w", err)
	}

	return doors, nil
}

// marshalDoorJSON serialises the door's JSON columns.
func marshalDoorJSON(d *Door) (schedules, methods, emergency string, err error) {
	schedulesJSON, err := json.Marshal(d.Schedules)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling schedules: %w", err)
	}

	methodsJSON, err := json.Marshal(d.AccessMethods)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling access_methods: %w", err)
	}

	emergencyJSON, err := json.Marshal(d.Emergency)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling emergency: %w", err)
	}

	return string(schedulesJSON), string(methodsJSON), string(emergencyJSON), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDoor scans a row or rows result into a Door.
func scanDoor(scanner rowScanner) (*Door, error) {
	var d Door
	var floor, area, deviceID, manufacturer, model sql.NullString
	var doorType, status string
	var schedulesJSON, methodsJSON, emergencyJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.BuildingID,
		&floor,
		&area,
		&d.Name,
		&doorType,
		&status,
		&schedulesJSON,
		&methodsJSON,
		&emergencyJSON,
		&deviceID,
		&manufacturer,
		&model,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = DoorType(doorType)
	d.Status = Status(status)

	if floor.Valid {
		d.Floor = &floor.String
	}
	if area.Valid {
		d.Area = &area.String
	}
	if deviceID.Valid {
		d.DeviceID = &deviceID.String
	}
	if manufacturer.Valid {
		d.Manufacturer = &manufacturer.String
	}
	if model.Valid {
		d.Model = &model.String
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(schedulesJSON), &d.Schedules); err != nil {
		return nil, fmt.Errorf("unmarshalling schedules: %w", err)
	}
	if err := json.Unmarshal([]byte(methodsJSON), &d.AccessMethods); err != nil {
		return nil, fmt.Errorf("unmarshalling access_methods: %w", err)
	}
	if err := json.Unmarshal([]byte(emergencyJSON), &d.Emergency); err != nil {
		return nil, fmt.Errorf("unmarshalling emergency: %w", err)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}

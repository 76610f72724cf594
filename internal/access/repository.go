package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finchsec/doorman-core/internal/credential"
)

// Repository defines the interface for access persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves an access by its unique identifier.
	// Returns ErrNotFound if the access does not exist.
	GetByID(ctx context.Context, id string) (*Access, error)

	// GetByCredential resolves an access by its PIN value scoped to one
	// building. Returns ErrNotFound when no access carries the PIN.
	GetByCredential(ctx context.Context, buildingID, pin string) (*Access, error)

	// ListByBuilding retrieves all accesses for a building.
	ListByBuilding(ctx context.Context, buildingID string) ([]Access, error)

	// Create inserts a new access.
	// Returns ErrExists if an access with the same ID already exists.
	Create(ctx context.Context, a *Access) error

	// Update modifies an existing access.
	// Returns ErrNotFound if the access does not exist.
	Update(ctx context.Context, a *Access) error

	// IncrementUsage atomically increments the usage counter, guarded by
	// the maximum: the increment only applies while the counter is below
	// max_usage_count. Returns ErrUsageExhausted when the guard fails.
	// When the increment reaches the maximum, the access flips to
	// expired in the same call.
	IncrementUsage(ctx context.Context, id string) error
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

const accessColumns = `id, building_id, user_id, visitor_id, access_type,
	status, pin, pin_expires_at, door_ids, permissions, valid_from,
	valid_until, current_usage_count, max_usage_count, created_at, updated_at`

// GetByID retrieves an access by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Access, error) {
	query := `SELECT ` + accessColumns + ` FROM accesses WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	a, err := scanAccess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying access by id: %w", err)
	}
	return a, nil
}

// GetByCredential resolves an access by PIN value scoped to a building.
//
// PIN lookup is an indexed equality query; the constant-time comparison
// concern applies to the in-memory emergency-code path, not here, since
// the database index is keyed on the stored value either way.
func (r *SQLiteRepository) GetByCredential(ctx context.Context, buildingID, pin string) (*Access, error) {
	query := `SELECT ` + accessColumns + ` FROM accesses WHERE building_id = ? AND pin = ?`

	row := r.db.QueryRowContext(ctx, query, buildingID, pin)
	a, err := scanAccess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying access by credential: %w", err)
	}
	return a, nil
}

// ListByBuilding retrieves all accesses for a building.
func (r *SQLiteRepository) ListByBuilding(ctx context.Context, buildingID string) ([]Access, error) {
	query := `SELECT ` + accessColumns + ` FROM accesses WHERE building_id = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, buildingID)
	if err != nil {
		return nil, fmt.Errorf("querying accesses: %w", err)
	}
	defer rows.Close()

	var accesses []Access
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access: %w", err)
		}
		accesses = append(accesses, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accesses: %w", err)
	}

	return accesses, nil
}

// Create inserts a new access.
func (r *SQLiteRepository) Create(ctx context.Context, a *Access) error {
	doorIDsJSON, permsJSON, err := marshalAccessJSON(a)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `
		INSERT INTO accesses (` + accessColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.BuildingID,
		nullableString(a.UserID),
		nullableString(a.VisitorID),
		string(a.Type),
		string(a.Status),
		nullablePIN(a.PIN),
		nullableTime(a.PINExpiresAt),
		doorIDsJSON,
		permsJSON,
		a.ValidFrom.UTC().Format(time.RFC3339),
		nullableTime(a.ValidUntil),
		a.CurrentUsageCount,
		nullableInt(a.MaxUsageCount),
		a.CreatedAt.Format(time.RFC3339),
		a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting access: %w", err)
	}

	return nil
}

// Update modifies an existing access.
//
// The usage counter is deliberately excluded: it only moves through
// IncrementUsage so concurrent validations cannot overwrite it with a
// stale read.
func (r *SQLiteRepository) Update(ctx context.Context, a *Access) error {
	doorIDsJSON, permsJSON, err := marshalAccessJSON(a)
	if err != nil {
		return err
	}

	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accesses SET
			building_id = ?, user_id = ?, visitor_id = ?, access_type = ?,
			status = ?, pin = ?, pin_expires_at = ?, door_ids = ?,
			permissions = ?, valid_from = ?, valid_until = ?,
			max_usage_count = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		a.BuildingID,
		nullableString(a.UserID),
		nullableString(a.VisitorID),
		string(a.Type),
		string(a.Status),
		nullablePIN(a.PIN),
		nullableTime(a.PINExpiresAt),
		doorIDsJSON,
		permsJSON,
		a.ValidFrom.UTC().Format(time.RFC3339),
		nullableTime(a.ValidUntil),
		nullableInt(a.MaxUsageCount),
		a.UpdatedAt.Format(time.RFC3339),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating access: %w", err)
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

// IncrementUsage performs the guarded atomic increment.
//
// The WHERE clause is the guard: the row only updates while the counter
// is strictly below max_usage_count (or the max is NULL). Zero rows
// affected means either a missing access or an exhausted counter; the
// follow-up existence check disambiguates. Reaching the maximum flips
// status to expired in the same statement.
func (r *SQLiteRepository) IncrementUsage(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE accesses
		SET current_usage_count = current_usage_count + 1,
		    status = CASE
		        WHEN max_usage_count IS NOT NULL AND current_usage_count + 1 >= max_usage_count
		        THEN 'expired' ELSE status END,
		    updated_at = ?
		WHERE id = ?
		  AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)`

	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accesses WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("checking access exists: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrUsageExhausted
}

// marshalAccessJSON serialises the access's JSON columns.
func marshalAccessJSON(a *Access) (doorIDs, permissions string, err error) {
	doorIDsJSON, err := json.Marshal(a.DoorIDs)
	if err != nil {
		return "", "", fmt.Errorf("marshalling door_ids: %w", err)
	}

	permsJSON, err := json.Marshal(a.Permissions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling permissions: %w", err)
	}

	return string(doorIDsJSON), string(permsJSON), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccess scans a row or rows result into an Access.
func scanAccess(scanner rowScanner) (*Access, error) {
	var a Access
	var userID, visitorID, pin sql.NullString
	var pinExpiresAt, validUntil sql.NullString
	var maxUsage sql.NullInt64
	var accessType, status string
	var doorIDsJSON, permsJSON string
	var validFrom, createdAt, updatedAt string

	err := scanner.Scan(
		&a.ID,
		&a.BuildingID,
		&userID,
		&visitorID,
		&accessType,
		&status,
		&pin,
		&pinExpiresAt,
		&doorIDsJSON,
		&permsJSON,
		&validFrom,
		&validUntil,
		&a.CurrentUsageCount,
		&maxUsage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = AccessType(accessType)
	a.Status = Status(status)

	if userID.Valid {
		a.UserID = &userID.String
	}
	if visitorID.Valid {
		a.VisitorID = &visitorID.String
	}
	if pin.Valid && pin.String != "" {
		p, err := credential.New(pin.String)
		if err != nil {
			return nil, fmt.Errorf("parsing stored pin: %w", err)
		}
		a.PIN = p
	}
	if maxUsage.Valid {
		v := int(maxUsage.Int64)
		a.MaxUsageCount = &v
	}

	var parseErr error
	a.ValidFrom, parseErr = time.Parse(time.RFC3339, validFrom)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing valid_from: %w", parseErr)
	}
	if validUntil.Valid {
		t, err := time.Parse(time.RFC3339, validUntil.String)
		if err != nil {
			return nil, fmt.Errorf("parsing valid_until: %w", err)
		}
		a.ValidUntil = &t
	}
	if pinExpiresAt.Valid {
		t, err := time.Parse(time.RFC3339, pinExpiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing pin_expires_at: %w", err)
		}
		a.PINExpiresAt = &t
	}
	a.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	a.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(doorIDsJSON), &a.DoorIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling door_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(permsJSON), &a.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshalling permissions: %w", err)
	}

	return &a, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullablePIN stores the clear PIN value, or NULL when unset.
func nullablePIN(p credential.PIN) sql.NullString {
	if p.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Value(), Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
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

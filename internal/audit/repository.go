package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Filter controls which access logs to return.
type Filter struct {
	BuildingID string // optional: filter by building
	DoorID     string // optional: filter by door
	Result     Result // optional: filter by result
	EntityID   string // optional: filter by holder id
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated access log results.
type ListResult struct {
	Logs   []AccessLog `json:"logs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Repository defines the interface for the append-only access log and
// the security alert store. There is deliberately no update or delete:
// the audit trail is immutable.
type Repository interface {
	// Create appends one access log entry. ID and CreatedAt are
	// generated when empty.
	Create(ctx context.Context, log *AccessLog) error

	// List returns access logs matching the filter, most recent first.
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// CountFailuresSince counts denial-class results for one door at or
	// after the given time.
	CountFailuresSince(ctx context.Context, doorID string, since time.Time) (int, error)

	// CreateAlert persists a security alert. ID and CreatedAt are
	// generated when empty.
	CreateAlert(ctx context.Context, alert *Alert) error

	// ListAlerts returns alerts for a building, most recent first.
	ListAlerts(ctx context.Context, buildingID string, limit int) ([]Alert, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new access log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create appends one access log entry.
func (r *SQLiteRepository) Create(ctx context.Context, log *AccessLog) error {
	if log.ID == "" {
		log.ID = GenerateID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_logs (id, building_id, door_id, entity_type, entity_id, method, result, failure_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.BuildingID, log.DoorID, log.EntityType,
		nullableString(log.EntityID), log.Method, string(log.Result),
		nullableString(log.FailureReason),
		log.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access log: %w", err)
	}

	return nil
}

// List returns access logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder: WHERE clause assembly from filter fields
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for access log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.BuildingID != "" {
		conditions = append(conditions, "building_id = ?")
		args = append(args, filter.BuildingID)
	}
	if filter.DoorID != "" {
		conditions = append(conditions, "door_id = ?")
		args = append(args, filter.DoorID)
	}
	if filter.Result != "" {
		conditions = append(conditions, "result = ?")
		args = append(args, string(filter.Result))
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM access_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting access logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, building_id, door_id, entity_type, entity_id, method, result, failure_reason, created_at FROM access_logs %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	var logs []AccessLog
	for rows.Next() {
		var log AccessLog
		var entityID, failureReason sql.NullString
		var result, createdAt string

		if err := rows.Scan(&log.ID, &log.BuildingID, &log.DoorID, &log.EntityType,
			&entityID, &log.Method, &result, &failureReason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning access log: %w", err)
		}

		log.Result = Result(result)
		if entityID.Valid {
			log.EntityID = &entityID.String
		}
		if failureReason.Valid {
			log.FailureReason = &failureReason.String
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing access log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}

	if logs == nil {
		logs = []AccessLog{}
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// denialResults lists the result values that count toward the
// failed-attempt window, mirroring Result.Denial.
var denialResults = []any{
	string(ResultDoorOffline), string(ResultInvalidPIN), string(ResultExpired),
	string(ResultMaxUsageReached), string(ResultOutsideSchedule),
	string(ResultDenied), string(ResultInvalidCard),
}

// CountFailuresSince counts denial-class results for one door at or
// after the given time.
func (r *SQLiteRepository) CountFailuresSince(ctx context.Context, doorID string, since time.Time) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(denialResults)), ",")
	query := fmt.Sprintf( //nolint:gosec // placeholders only, values bound as args
		"SELECT COUNT(*) FROM access_logs WHERE door_id = ? AND created_at >= ? AND result IN (%s)",
		placeholders,
	)

	args := make([]any, 0, len(denialResults)+2)
	args = append(args, doorID, since.UTC().Format(time.RFC3339))
	args = append(args, denialResults...)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting failures: %w", err)
	}
	return count, nil
}

// CreateAlert persists a security alert.
func (r *SQLiteRepository) CreateAlert(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = GenerateAlertID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if alert.Details != nil {
		b, err := json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("marshalling alert details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_alerts (id, type, building_id, door_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Type), alert.BuildingID,
		nullableString(alert.DoorID), detailsJSON,
		alert.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting security alert: %w", err)
	}

	return nil
}

// ListAlerts returns alerts for a building, most recent first.
func (r *SQLiteRepository) ListAlerts(ctx context.Context, buildingID string, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, building_id, door_id, details, created_at
		 FROM security_alerts WHERE building_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		buildingID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying security alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var doorID, detailsJSON sql.NullString
		var alertType, createdAt string

		if err := rows.Scan(&a.ID, &alertType, &a.BuildingID, &doorID, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning security alert: %w", err)
		}

		a.Type = AlertType(alertType)
		if doorID.Valid {
			a.DoorID = &doorID.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				a.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing alert timestamp %q: %w", createdAt, err)
		}
		a.CreatedAt = t

		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security alerts: %w", err)
	}

	return alerts, nil
}

// nullableString returns nil for nil or empty strings.
// Used for nullable TEXT columns in SQLite.
func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

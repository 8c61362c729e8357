package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/database"
)

// TIME columns are projected as text so they scan into "15:04:05" strings
// rather than driver timestamps anchored on year zero.
const sessionColumns = `id, offering_id, owner_id, schedule_date, to_char(start_time, 'HH24:MI:SS') AS start_time, to_char(end_time, 'HH24:MI:SS') AS end_time, venue, latitude, longitude, radius_meters, active, created_at, updated_at`

// timeOfDay reduces a scanned TIME value to its clock reading. lib/pq hands
// TIME columns back as time.Time, which database/sql renders as RFC3339.
func timeOfDay(raw string) string {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.Format("15:04:05")
	}
	return raw
}

func normalizeSession(session *models.ClassSession) {
	session.StartTime = timeOfDay(session.StartTime)
	session.EndTime = timeOfDay(session.EndTime)
}

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	var session models.ClassSession
	query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE id = $1`, sessionColumns)
	if err := database.Conn(ctx, r.db).GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("find class session: %w", err)
	}
	normalizeSession(&session)
	return &session, nil
}

// FindByIDForUpdate returns a session and holds its row lock until the
// surrounding transaction ends.
func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.ClassSession, error) {
	var session models.ClassSession
	query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE id = $1 FOR UPDATE`, sessionColumns)
	if err := database.Conn(ctx, r.db).GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("lock class session: %w", err)
	}
	normalizeSession(&session)
	return &session, nil
}

// List returns sessions matching the filter ordered by date and start time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	where := []string{"active = TRUE"}
	args := []interface{}{}
	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.OfferingID != "" {
		where = append(where, fmt.Sprintf("offering_id = $%d", len(args)+1))
		args = append(args, filter.OfferingID)
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("schedule_date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	conn := database.Conn(ctx, r.db)
	query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE %s ORDER BY schedule_date DESC, start_time ASC LIMIT %d OFFSET %d`, sessionColumns, whereClause, size, offset)
	var sessions []models.ClassSession
	if err := conn.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sessions: %w", err)
	}
	for i := range sessions {
		normalizeSession(&sessions[i])
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM class_sessions WHERE %s`, whereClause)
	var total int
	if err := conn.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sessions: %w", err)
	}
	return sessions, total, nil
}

// Create inserts a new session. Callers stamp CreatedAt and UpdatedAt; zero
// values fall back to the wall clock.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	session.Active = true

	query := `INSERT INTO class_sessions (id, offering_id, owner_id, schedule_date, start_time, end_time, venue, latitude, longitude, radius_meters, active, created_at, updated_at)
VALUES (:id, :offering_id, :owner_id, :schedule_date, :start_time, :end_time, :venue, :latitude, :longitude, :radius_meters, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, session); err != nil {
		return fmt.Errorf("create class session: %w", err)
	}
	return nil
}

// UpdateSchedule rewrites the temporal and venue fields of a session along
// with the caller-supplied UpdatedAt.
func (r *SessionRepository) UpdateSchedule(ctx context.Context, session *models.ClassSession) error {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	query := `UPDATE class_sessions SET schedule_date = :schedule_date, start_time = :start_time, end_time = :end_time, venue = :venue,
latitude = :latitude, longitude = :longitude, radius_meters = :radius_meters, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, session); err != nil {
		return fmt.Errorf("update class session: %w", err)
	}
	return nil
}

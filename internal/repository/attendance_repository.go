package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/database"
)

const attendanceColumns = `id, student_id, session_id, token_id, status, scan_time, scan_latitude, scan_longitude, location_valid, marked_by_owner, note, created_at, updated_at`

// AttendanceRepository persists attendance records. The (student_id,
// session_id) pair is unique in storage.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Exists reports whether a record exists for the student and session.
func (r *AttendanceRepository) Exists(ctx context.Context, studentID, sessionID string) (bool, error) {
	const query = `SELECT 1 FROM attendance_records WHERE student_id = $1 AND session_id = $2`
	var exists int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, studentID, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance record: %w", err)
	}
	return true, nil
}

// stampRecord fills audit timestamps the caller left unset.
func stampRecord(record *models.AttendanceRecord) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}

// InsertIfAbsent creates the record unless one already exists for the pair,
// in which case ErrDuplicate is returned and nothing is written.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	stampRecord(record)

	query := `INSERT INTO attendance_records (id, student_id, session_id, token_id, status, scan_time, scan_latitude, scan_longitude, location_valid, marked_by_owner, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (student_id, session_id) DO NOTHING
RETURNING id`
	var id string
	err := database.Conn(ctx, r.db).GetContext(ctx, &id, query,
		record.ID, record.StudentID, record.SessionID, record.TokenID, record.Status, record.ScanTime,
		record.ScanLatitude, record.ScanLongitude, record.LocationValid, record.MarkedByOwner, record.Note,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert attendance record: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// Upsert creates or overwrites the record for the pair as an owner mark.
// The returned record carries the persisted id.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	stampRecord(record)

	query := fmt.Sprintf(`INSERT INTO attendance_records (id, student_id, session_id, token_id, status, scan_time, scan_latitude, scan_longitude, location_valid, marked_by_owner, note, created_at, updated_at)
VALUES ($1, $2, $3, NULL, $4, $5, NULL, NULL, FALSE, TRUE, $6, $7, $8)
ON CONFLICT (student_id, session_id) DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note,
scan_time = COALESCE(EXCLUDED.scan_time, attendance_records.scan_time), marked_by_owner = TRUE, updated_at = EXCLUDED.updated_at
RETURNING %s`, attendanceColumns)
	var saved models.AttendanceRecord
	if err := database.Conn(ctx, r.db).GetContext(ctx, &saved, query,
		record.ID, record.StudentID, record.SessionID, record.Status, record.ScanTime, record.Note, record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &saved, nil
}

// ListBySession returns every record of a session.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE session_id = $1 ORDER BY created_at ASC`, attendanceColumns)
	var rows []models.AttendanceRecord
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// ListByStudent returns a student's attendance history, newest session first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttendanceRow, error) {
	const query = `SELECT a.id, a.student_id, a.session_id, a.token_id, a.status, a.scan_time, a.scan_latitude, a.scan_longitude,
a.location_valid, a.marked_by_owner, a.note, a.created_at, a.updated_at,
s.offering_id, s.schedule_date, to_char(s.start_time, 'HH24:MI:SS') AS start_time, s.venue
FROM attendance_records a JOIN class_sessions s ON s.id = a.session_id
WHERE a.student_id = $1 ORDER BY s.schedule_date DESC, s.start_time DESC`
	var rows []models.StudentAttendanceRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	for i := range rows {
		rows[i].StartTime = timeOfDay(rows[i].StartTime)
	}
	return rows, nil
}

// CountByStudentOffering tallies a student's records across an offering's sessions.
func (r *AttendanceRepository) CountByStudentOffering(ctx context.Context, studentID, offeringID string) ([]models.StatusCount, error) {
	const query = `SELECT a.status, COUNT(*) AS count FROM attendance_records a
JOIN class_sessions s ON s.id = a.session_id
WHERE a.student_id = $1 AND s.offering_id = $2 GROUP BY a.status`
	var rows []models.StatusCount
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, studentID, offeringID); err != nil {
		return nil, fmt.Errorf("count student attendance: %w", err)
	}
	return rows, nil
}

// CountBySession tallies a session's records by status.
func (r *AttendanceRepository) CountBySession(ctx context.Context, sessionID string) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM attendance_records WHERE session_id = $1 GROUP BY status`
	var rows []models.StatusCount
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("count session attendance: %w", err)
	}
	return rows, nil
}

package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the ground truth of a student's presence at a session.
// At most one exists per (student, session).
type AttendanceRecord struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	SessionID     string           `db:"session_id" json:"session_id"`
	TokenID       *string          `db:"token_id" json:"token_id,omitempty"`
	Status        AttendanceStatus `db:"status" json:"status"`
	ScanTime      *time.Time       `db:"scan_time" json:"scan_time,omitempty"`
	ScanLatitude  *float64         `db:"scan_latitude" json:"scan_latitude,omitempty"`
	ScanLongitude *float64         `db:"scan_longitude" json:"scan_longitude,omitempty"`
	LocationValid bool             `db:"location_valid" json:"location_valid"`
	MarkedByOwner bool             `db:"marked_by_owner" json:"marked_by_owner"`
	Note          *string          `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// WasLate reports whether the scan happened after the session start.
func (r *AttendanceRecord) WasLate(start time.Time) bool {
	return r != nil && r.ScanTime != nil && r.ScanTime.After(start)
}

// Redemption is the outcome of a successful token redemption.
type Redemption struct {
	AttendanceID  string    `json:"attendance_id"`
	LocationValid bool      `json:"location_valid"`
	ScanTime      time.Time `json:"scan_time"`
}

// StudentAttendanceRow is an attendance entry in a student's history.
type StudentAttendanceRow struct {
	AttendanceRecord
	OfferingID   string    `db:"offering_id" json:"offering_id"`
	ScheduleDate time.Time `db:"schedule_date" json:"schedule_date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	Venue        string    `db:"venue" json:"venue"`
}

// StatusCount is one row of a GROUP BY status aggregate.
type StatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"count"`
}

// AttendanceCounts tallies records by status.
type AttendanceCounts struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
	Excused int `json:"excused"`
}

// AttendanceSummary is the per (student, offering) rollup. It is always
// recomputed from attendance records.
type AttendanceSummary struct {
	StudentID  string `json:"student_id"`
	OfferingID string `json:"offering_id"`
	AttendanceCounts
	Percentage float64   `json:"attendance_percentage"`
	ComputedAt time.Time `json:"computed_at"`
}

// SessionAttendanceSummary is the rollup for a single session.
type SessionAttendanceSummary struct {
	SessionID string `json:"session_id"`
	Enrolled  int    `json:"enrolled"`
	AttendanceCounts
	Percentage float64 `json:"attendance_percentage"`
}

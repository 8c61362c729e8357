package models

import "time"

// SessionStatus is the temporal state of a class session.
type SessionStatus string

const (
	SessionStatusUpcoming SessionStatus = "UPCOMING"
	SessionStatusOngoing  SessionStatus = "ONGOING"
	SessionStatusEnded    SessionStatus = "ENDED"
)

// ClassSession is one scheduled teaching occurrence of a unit offering.
// StartTime and EndTime are wall-clock times of day ("15:04:05") on
// ScheduleDate in the configured time zone.
type ClassSession struct {
	ID           string    `db:"id" json:"id"`
	OfferingID   string    `db:"offering_id" json:"offering_id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	ScheduleDate time.Time `db:"schedule_date" json:"schedule_date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	Venue        string    `db:"venue" json:"venue"`
	Latitude     *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64  `db:"longitude" json:"longitude,omitempty"`
	RadiusMeters int       `db:"radius_meters" json:"radius_meters"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HasGeofence reports whether the venue center is known.
func (s *ClassSession) HasGeofence() bool {
	return s != nil && s.Latitude != nil && s.Longitude != nil
}

// SessionView is a session as returned to callers, with its derived state
// computed at read time.
type SessionView struct {
	Session          ClassSession  `json:"session"`
	Status           SessionStatus `json:"status"`
	CanGenerateToken bool          `json:"can_generate_token"`
	EnrolledCount    int           `json:"enrolled_count"`
}

// SessionFilter scopes session listings.
type SessionFilter struct {
	OwnerID    string
	OfferingID string
	Date       *time.Time
	Page       int
	PageSize   int
}

// Offering pairs a unit with a semester, taught by one lecturer.
type Offering struct {
	ID         string  `db:"id" json:"id"`
	UnitCode   string  `db:"unit_code" json:"unit_code"`
	UnitName   string  `db:"unit_name" json:"unit_name"`
	SemesterID string  `db:"semester_id" json:"semester_id"`
	LecturerID *string `db:"lecturer_id" json:"lecturer_id,omitempty"`
}

// OwnedBy reports whether the lecturer teaches the offering.
func (o *Offering) OwnedBy(lecturerID string) bool {
	return o != nil && o.LecturerID != nil && *o.LecturerID == lecturerID
}

package models

import "time"

// EnrollmentRecord is a student's membership in a unit offering's roster.
type EnrollmentRecord struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	OfferingID string    `db:"offering_id" json:"offering_id"`
	Active     bool      `db:"active" json:"active"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendify-api/pkg/database"
)

// EnrollmentRepository reads offering rosters.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsActive reports whether the student holds an active enrollment in the offering.
func (r *EnrollmentRepository) IsActive(ctx context.Context, studentID, offeringID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND offering_id = $2 AND active = TRUE LIMIT 1`
	var exists int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, studentID, offeringID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CountActive returns the size of an offering's active roster.
func (r *EnrollmentRepository) CountActive(ctx context.Context, offeringID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE offering_id = $1 AND active = TRUE`
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, query, offeringID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return total, nil
}

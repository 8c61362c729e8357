package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/database"
)

// OfferingRepository reads unit offerings owned by the academic catalog.
type OfferingRepository struct {
	db *sqlx.DB
}

// NewOfferingRepository constructs the repository.
func NewOfferingRepository(db *sqlx.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

// FindByID returns an offering by id.
func (r *OfferingRepository) FindByID(ctx context.Context, id string) (*models.Offering, error) {
	var offering models.Offering
	const query = `SELECT id, unit_code, unit_name, semester_id, lecturer_id FROM offerings WHERE id = $1`
	if err := database.Conn(ctx, r.db).GetContext(ctx, &offering, query, id); err != nil {
		return nil, fmt.Errorf("find offering: %w", err)
	}
	return &offering, nil
}

// LecturerTeachesStudent reports whether the lecturer owns any offering the
// student is actively enrolled in.
func (r *OfferingRepository) LecturerTeachesStudent(ctx context.Context, lecturerID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments e JOIN offerings o ON o.id = e.offering_id
WHERE o.lecturer_id = $1 AND e.student_id = $2 AND e.active = TRUE LIMIT 1`
	var exists int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, lecturerID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lecturer student access: %w", err)
	}
	return true, nil
}

package service

import (
	"context"

	"go.uber.org/zap"
)

type enrollmentRepository interface {
	IsActive(ctx context.Context, studentID, offeringID string) (bool, error)
	CountActive(ctx context.Context, offeringID string) (int, error)
}

// EnrollmentGate decides whether a student belongs to an offering's active
// roster. It always reads committed state and keeps no cache.
type EnrollmentGate struct {
	repo   enrollmentRepository
	logger *zap.Logger
}

// NewEnrollmentGate constructs the gate.
func NewEnrollmentGate(repo enrollmentRepository, logger *zap.Logger) *EnrollmentGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentGate{repo: repo, logger: logger}
}

// IsEnrolled reports whether the student is actively enrolled in the offering.
func (g *EnrollmentGate) IsEnrolled(ctx context.Context, studentID, offeringID string) (bool, error) {
	if studentID == "" || offeringID == "" {
		return false, nil
	}
	ok, err := g.repo.IsActive(ctx, studentID, offeringID)
	if err != nil {
		return false, storageFailure(g.logger, "enrollment lookup failed", err,
			zap.String("student_id", studentID), zap.String("offering_id", offeringID))
	}
	return ok, nil
}

// RosterSize returns the number of active enrollments in the offering.
func (g *EnrollmentGate) RosterSize(ctx context.Context, offeringID string) (int, error) {
	total, err := g.repo.CountActive(ctx, offeringID)
	if err != nil {
		return 0, storageFailure(g.logger, "roster count failed", err, zap.String("offering_id", offeringID))
	}
	return total, nil
}

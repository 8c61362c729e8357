package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/repository"
	"github.com/noah-isme/attendify-api/pkg/config"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/geo"
)

type attendanceRepository interface {
	Exists(ctx context.Context, studentID, sessionID string) (bool, error)
	InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) error
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttendanceRow, error)
	CountBySession(ctx context.Context, sessionID string) ([]models.StatusCount, error)
}

type attendanceSessionRepository interface {
	sessionLocker
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
}

type studentAccessChecker interface {
	LecturerTeachesStudent(ctx context.Context, lecturerID, studentID string) (bool, error)
}

type tokenLedger interface {
	ValidateAt(ctx context.Context, secret string, session *models.ClassSession, now time.Time) (*models.SessionToken, error)
	Consume(ctx context.Context, token *models.SessionToken, at time.Time) error
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, offeringID string) (bool, error)
	RosterSize(ctx context.Context, offeringID string) (int, error)
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context, studentID, offeringID string)
}

// GeofencePolicy decides how scans against sessions without venue
// coordinates are judged.
type GeofencePolicy struct {
	DefaultRadius int
	UnsetIsValid  bool
}

// GeofencePolicyFromConfig builds the policy from attendance settings.
func GeofencePolicyFromConfig(cfg config.AttendanceConfig) GeofencePolicy {
	return GeofencePolicy{
		DefaultRadius: cfg.DefaultGeofenceRadius,
		UnsetIsValid:  cfg.UnsetGeofencePolicy == config.UnsetGeofenceValid,
	}
}

// AttendanceService records attendance. Redemption runs as one transaction
// with the session row locked; manual marks are owner upserts.
type AttendanceService struct {
	repo      attendanceRepository
	sessions  attendanceSessionRepository
	access    studentAccessChecker
	tokens    tokenLedger
	gate      enrollmentChecker
	tx        txRunner
	clock     *SessionClock
	summaries summaryInvalidator
	policy    GeofencePolicy
	metrics   *MetricsService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// AttendanceServiceDeps groups the collaborators of AttendanceService.
type AttendanceServiceDeps struct {
	Repo      attendanceRepository
	Sessions  attendanceSessionRepository
	Access    studentAccessChecker
	Tokens    tokenLedger
	Gate      enrollmentChecker
	Tx        txRunner
	Clock     *SessionClock
	Summaries summaryInvalidator
	Policy    GeofencePolicy
	Metrics   *MetricsService
	Audit     auditRecorder
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(deps AttendanceServiceDeps) *AttendanceService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy.DefaultRadius <= 0 {
		deps.Policy.DefaultRadius = 50
	}
	svc := &AttendanceService{
		repo:      deps.Repo,
		sessions:  deps.Sessions,
		access:    deps.Access,
		tokens:    deps.Tokens,
		gate:      deps.Gate,
		tx:        deps.Tx,
		clock:     deps.Clock,
		summaries: deps.Summaries,
		policy:    deps.Policy,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
	_ = svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// RedeemTokenRequest is a student's claim of presence.
type RedeemTokenRequest struct {
	Token     string   `json:"token" validate:"required,max=128"`
	SessionID string   `json:"session_id" validate:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// MarkManuallyRequest is an owner's override for one student.
type MarkManuallyRequest struct {
	SessionID string     `json:"-"`
	StudentID string     `json:"-"`
	Status    string     `json:"status" validate:"required,attendance_status"`
	Note      *string    `json:"note" validate:"omitempty,max=1000"`
	ScanTime  *time.Time `json:"scan_time"`
}

// RedeemToken records the caller's attendance if the token, the session
// window, the roster and the uniqueness rule all allow it. Location never
// blocks a redemption; it only sets LocationValid.
func (s *AttendanceService) RedeemToken(ctx context.Context, principal models.Principal, req RedeemTokenRequest) (*models.Redemption, error) {
	if !principal.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can scan QR codes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := checkLocation(req.Latitude, req.Longitude); err != nil {
		s.metrics.RecordRedemption(appErrors.ErrInvalidLocation.Code)
		return nil, err
	}

	var (
		result  *models.Redemption
		session *models.ClassSession
		expired error
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		session, err = lockSession(ctx, s.sessions, req.SessionID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		token, err := s.tokens.ValidateAt(ctx, req.Token, session, now)
		if err != nil {
			if errors.Is(err, appErrors.ErrTokenExpired) {
				// commit the deactivation, then report the expiry
				expired = err
				return nil
			}
			return err
		}

		enrolled, err := s.gate.IsEnrolled(ctx, principal.ID, session.OfferingID)
		if err != nil {
			return err
		}
		if !enrolled {
			return appErrors.ErrNotEnrolled
		}

		marked, err := s.repo.Exists(ctx, principal.ID, session.ID)
		if err != nil {
			return err
		}
		if marked {
			return appErrors.ErrAlreadyMarked
		}

		locationValid := s.locationValid(session, req.Latitude, req.Longitude)
		scanTime := now
		tokenID := token.ID
		rec := &models.AttendanceRecord{
			StudentID:     principal.ID,
			SessionID:     session.ID,
			TokenID:       &tokenID,
			Status:        models.AttendanceStatusPresent,
			ScanTime:      &scanTime,
			ScanLatitude:  req.Latitude,
			ScanLongitude: req.Longitude,
			LocationValid: locationValid,
			CreatedAt:     now.UTC(),
			UpdatedAt:     now.UTC(),
		}
		if err := s.repo.InsertIfAbsent(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.ErrAlreadyMarked
			}
			return err
		}
		if err := s.tokens.Consume(ctx, token, now); err != nil {
			return err
		}

		result = &models.Redemption{AttendanceID: rec.ID, LocationValid: locationValid, ScanTime: scanTime}
		return nil
	})
	if err == nil && expired != nil {
		err = expired
	}
	if err != nil {
		err = passThrough(s.logger, "redeem token failed", err,
			zap.String("session_id", req.SessionID), zap.String("student_id", principal.ID))
		s.metrics.RecordRedemption(appErrors.FromError(err).Code)
		return nil, err
	}

	s.metrics.RecordRedemption("OK")
	s.invalidateSummary(ctx, principal.ID, session.OfferingID)
	record(s.audit, ctx, models.AuditEvent{
		ActorID:     principal.ID,
		Action:      models.AuditActionScan,
		Description: fmt.Sprintf("Attendance marked via QR for session %s", session.ID),
		Metadata: map[string]interface{}{
			"session_id":     session.ID,
			"attendance_id":  result.AttendanceID,
			"location_valid": result.LocationValid,
		},
		OccurredAt: result.ScanTime,
	})
	return result, nil
}

// MarkManually creates or overwrites a student's record for a session the
// caller owns. Token and geofence checks do not apply.
func (s *AttendanceService) MarkManually(ctx context.Context, principal models.Principal, req MarkManuallyRequest) (*models.AttendanceRecord, error) {
	if !principal.IsLecturer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can mark attendance manually")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if !validID(req.StudentID) {
		return nil, appErrors.ErrNotEnrolled
	}

	var (
		saved   *models.AttendanceRecord
		session *models.ClassSession
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		session, err = lockSession(ctx, s.sessions, req.SessionID)
		if err != nil {
			return err
		}
		if session.OwnerID != principal.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "you can only mark attendance for your own classes")
		}
		enrolled, err := s.gate.IsEnrolled(ctx, req.StudentID, session.OfferingID)
		if err != nil {
			return err
		}
		if !enrolled {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this unit")
		}

		stamp := s.clock.Now().UTC()
		saved, err = s.repo.Upsert(ctx, &models.AttendanceRecord{
			StudentID:     req.StudentID,
			SessionID:     session.ID,
			Status:        models.AttendanceStatus(strings.ToUpper(req.Status)),
			ScanTime:      req.ScanTime,
			MarkedByOwner: true,
			Note:          req.Note,
			CreatedAt:     stamp,
			UpdatedAt:     stamp,
		})
		return err
	})
	if err != nil {
		return nil, passThrough(s.logger, "manual attendance mark failed", err,
			zap.String("session_id", req.SessionID), zap.String("student_id", req.StudentID))
	}

	s.invalidateSummary(ctx, req.StudentID, session.OfferingID)
	record(s.audit, ctx, models.AuditEvent{
		ActorID:     principal.ID,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("Attendance for student %s set to %s in session %s", req.StudentID, saved.Status, session.ID),
		Metadata: map[string]interface{}{
			"session_id":    session.ID,
			"student_id":    req.StudentID,
			"attendance_id": saved.ID,
			"status":        saved.Status,
		},
		OccurredAt: s.clock.Now(),
	})
	return saved, nil
}

// ListSessionAttendance returns the records of a session to its owner or an admin.
func (s *AttendanceService) ListSessionAttendance(ctx context.Context, principal models.Principal, sessionID string) ([]models.AttendanceRecord, error) {
	session, err := s.readableSession(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, storageFailure(s.logger, "list session attendance failed", err, zap.String("session_id", session.ID))
	}
	return rows, nil
}

// ListStudentAttendance returns a student's history to the student, an
// admin, or a lecturer teaching one of the student's offerings.
func (s *AttendanceService) ListStudentAttendance(ctx context.Context, principal models.Principal, studentID string) ([]models.StudentAttendanceRow, error) {
	if !validID(studentID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	allowed, err := s.canViewStudent(ctx, principal, studentID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot view this student's attendance")
	}
	rows, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storageFailure(s.logger, "list student attendance failed", err, zap.String("student_id", studentID))
	}
	return rows, nil
}

// SessionSummary rolls up a session's records by status next to its roster size.
func (s *AttendanceService) SessionSummary(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionAttendanceSummary, error) {
	session, err := s.readableSession(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.CountBySession(ctx, session.ID)
	if err != nil {
		return nil, storageFailure(s.logger, "session summary failed", err, zap.String("session_id", session.ID))
	}
	enrolled, err := s.gate.RosterSize(ctx, session.OfferingID)
	if err != nil {
		return nil, err
	}
	counts := Tally(rows)
	return &models.SessionAttendanceSummary{
		SessionID:        session.ID,
		Enrolled:         enrolled,
		AttendanceCounts: counts,
		Percentage:       Percentage(counts),
	}, nil
}

func (s *AttendanceService) readableSession(ctx context.Context, principal models.Principal, sessionID string) (*models.ClassSession, error) {
	if !validID(sessionID) {
		return nil, appErrors.ErrSessionNotFound
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, storageFailure(s.logger, "session lookup failed", err, zap.String("session_id", sessionID))
	}
	if principal.IsAdmin() || (principal.IsLecturer() && session.OwnerID == principal.ID) {
		return session, nil
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only view attendance for your own classes")
}

func (s *AttendanceService) canViewStudent(ctx context.Context, principal models.Principal, studentID string) (bool, error) {
	switch {
	case principal.IsAdmin():
		return true, nil
	case principal.IsStudent():
		return principal.ID == studentID, nil
	case principal.IsLecturer():
		ok, err := s.access.LecturerTeachesStudent(ctx, principal.ID, studentID)
		if err != nil {
			return false, storageFailure(s.logger, "student access check failed", err,
				zap.String("lecturer_id", principal.ID), zap.String("student_id", studentID))
		}
		return ok, nil
	default:
		return false, nil
	}
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, studentID, offeringID string) {
	if s.summaries != nil {
		s.summaries.Invalidate(ctx, studentID, offeringID)
	}
}

func (s *AttendanceService) locationValid(session *models.ClassSession, lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	if !session.HasGeofence() {
		return s.policy.UnsetIsValid
	}
	radius := session.RadiusMeters
	if radius <= 0 {
		radius = s.policy.DefaultRadius
	}
	return geo.IsWithinRadius(*lat, *lng, *session.Latitude, *session.Longitude, float64(radius))
}

// checkLocation rejects malformed samples. Both coordinates or neither must be
// supplied.
func checkLocation(lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return appErrors.Clone(appErrors.ErrInvalidLocation, "latitude and longitude must be supplied together")
	}
	if !geo.ValidCoordinate(*lat, *lng) {
		return appErrors.ErrInvalidLocation
	}
	return nil
}

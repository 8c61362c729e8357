package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/geo"
)

type sessionRepository interface {
	sessionLocker
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error)
	Create(ctx context.Context, session *models.ClassSession) error
	UpdateSchedule(ctx context.Context, session *models.ClassSession) error
}

type issuedTokenChecker interface {
	HasIssued(ctx context.Context, sessionID string) (bool, error)
}

// SessionService schedules class sessions and exposes them with their
// derived state.
type SessionService struct {
	repo      sessionRepository
	offerings offeringRepository
	tokens    issuedTokenChecker
	gate      enrollmentChecker
	tx        txRunner
	clock     *SessionClock
	radius    int
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, offerings offeringRepository, tokens issuedTokenChecker, gate enrollmentChecker, tx txRunner, sessionClock *SessionClock, defaultRadius int, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultRadius <= 0 {
		defaultRadius = 50
	}
	return &SessionService{
		repo:      repo,
		offerings: offerings,
		tokens:    tokens,
		gate:      gate,
		tx:        tx,
		clock:     sessionClock,
		radius:    defaultRadius,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// SessionScheduleInput carries the temporal and venue fields of a session.
type SessionScheduleInput struct {
	Date         string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string   `json:"start_time" validate:"required"`
	EndTime      string   `json:"end_time" validate:"required"`
	Venue        string   `json:"venue" validate:"required,max=255"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters *int     `json:"radius_meters" validate:"omitempty,gt=0,lte=10000"`
}

// ScheduleSessionRequest creates a session for an offering.
type ScheduleSessionRequest struct {
	OfferingID string `json:"offering_id" validate:"required,uuid"`
	SessionScheduleInput
}

// ListSessionsRequest filters the caller's sessions.
type ListSessionsRequest struct {
	Date     string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// Schedule creates a session for an offering the caller teaches.
func (s *SessionService) Schedule(ctx context.Context, principal models.Principal, req ScheduleSessionRequest) (*models.SessionView, error) {
	if !principal.IsLecturer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can schedule classes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	offering, err := s.offerings.FindByID(ctx, req.OfferingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return nil, storageFailure(s.logger, "offering lookup failed", err, zap.String("offering_id", req.OfferingID))
	}
	if !offering.OwnedBy(principal.ID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not teach this unit")
	}

	now := s.clock.Now().UTC()
	session := &models.ClassSession{OfferingID: offering.ID, OwnerID: principal.ID, CreatedAt: now, UpdatedAt: now}
	if err := s.applySchedule(session, req.SessionScheduleInput); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, storageFailure(s.logger, "create class session failed", err, zap.String("offering_id", offering.ID))
	}

	record(s.audit, ctx, models.AuditEvent{
		ActorID:     principal.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("Class %s scheduled on %s", offering.UnitCode, req.Date),
		Metadata:    map[string]interface{}{"session_id": session.ID, "offering_id": offering.ID},
		OccurredAt:  s.clock.Now(),
	})
	return s.view(ctx, session)
}

// Reschedule changes the date, times or venue of a session. Sessions that
// ever had a token issued are locked.
func (s *SessionService) Reschedule(ctx context.Context, principal models.Principal, sessionID string, input SessionScheduleInput) (*models.SessionView, error) {
	if !principal.IsLecturer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can reschedule classes")
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	var session *models.ClassSession
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		session, err = lockSession(ctx, s.repo, sessionID)
		if err != nil {
			return err
		}
		if session.OwnerID != principal.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "you can only reschedule your own classes")
		}
		issued, err := s.tokens.HasIssued(ctx, session.ID)
		if err != nil {
			return err
		}
		if issued {
			return appErrors.ErrSessionLocked
		}
		if err := s.applySchedule(session, input); err != nil {
			return err
		}
		session.UpdatedAt = s.clock.Now().UTC()
		return s.repo.UpdateSchedule(ctx, session)
	})
	if err != nil {
		return nil, passThrough(s.logger, "reschedule class session failed", err, zap.String("session_id", sessionID))
	}

	record(s.audit, ctx, models.AuditEvent{
		ActorID:     principal.ID,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("Class session %s rescheduled to %s", session.ID, input.Date),
		Metadata:    map[string]interface{}{"session_id": session.ID},
		OccurredAt:  s.clock.Now(),
	})
	return s.view(ctx, session)
}

// Get returns a session to its owner, an admin, or an enrolled student.
func (s *SessionService) Get(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionView, error) {
	if !validID(sessionID) {
		return nil, appErrors.ErrSessionNotFound
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, storageFailure(s.logger, "session lookup failed", err, zap.String("session_id", sessionID))
	}

	switch {
	case principal.IsAdmin():
	case principal.IsLecturer() && session.OwnerID == principal.ID:
	case principal.IsStudent():
		enrolled, err := s.gate.IsEnrolled(ctx, principal.ID, session.OfferingID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, appErrors.ErrNotEnrolled
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return s.view(ctx, session)
}

// ListForOwner returns the caller's sessions with their derived state.
func (s *SessionService) ListForOwner(ctx context.Context, principal models.Principal, req ListSessionsRequest) ([]models.SessionView, *models.Pagination, error) {
	if !principal.IsLecturer() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers have a class list")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	filter := models.SessionFilter{OwnerID: principal.ID, Page: req.Page, PageSize: req.PageSize}
	if req.Date != "" {
		date, _ := time.Parse("2006-01-02", req.Date)
		filter.Date = &date
	}
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storageFailure(s.logger, "list class sessions failed", err, zap.String("owner_id", principal.ID))
	}

	views := make([]models.SessionView, 0, len(sessions))
	for i := range sessions {
		view, err := s.view(ctx, &sessions[i])
		if err != nil {
			return nil, nil, err
		}
		views = append(views, *view)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// view attaches status, token capability and roster size computed now.
func (s *SessionService) view(ctx context.Context, session *models.ClassSession) (*models.SessionView, error) {
	enrolled, err := s.gate.RosterSize(ctx, session.OfferingID)
	if err != nil {
		return nil, err
	}
	status := s.clock.Status(session)
	return &models.SessionView{
		Session:          *session,
		Status:           status,
		CanGenerateToken: status == models.SessionStatusOngoing,
		EnrolledCount:    enrolled,
	}, nil
}

func (s *SessionService) applySchedule(session *models.ClassSession, input SessionScheduleInput) error {
	date, err := time.Parse("2006-01-02", input.Date)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	if date.Before(s.clock.Today()) {
		return appErrors.Clone(appErrors.ErrValidation, "cannot schedule a class in the past")
	}
	start, err := ParseTimeOfDay(input.StartTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM or HH:MM:SS")
	}
	end, err := ParseTimeOfDay(input.EndTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM or HH:MM:SS")
	}
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	if (input.Latitude == nil) != (input.Longitude == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be supplied together")
	}
	if input.Latitude != nil && !geo.ValidCoordinate(*input.Latitude, *input.Longitude) {
		return appErrors.Clone(appErrors.ErrValidation, "venue coordinates are out of range")
	}

	radius := s.radius
	if input.RadiusMeters != nil {
		radius = *input.RadiusMeters
	}

	session.ScheduleDate = date
	session.StartTime = start.Format("15:04:05")
	session.EndTime = end.Format("15:04:05")
	session.Venue = input.Venue
	session.Latitude = input.Latitude
	session.Longitude = input.Longitude
	session.RadiusMeters = radius
	return nil
}

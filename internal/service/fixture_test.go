package service

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/clock"
	"github.com/noah-isme/attendify-api/pkg/geo"
)

const (
	lecturerID      = "11111111-1111-4111-8111-111111111111"
	otherLecturerID = "11111111-1111-4111-8111-222222222222"
	adminID         = "11111111-1111-4111-8111-333333333333"
	studentID       = "22222222-2222-4222-8222-111111111111"
	outsiderID      = "22222222-2222-4222-8222-222222222222"
	offeringID      = "33333333-3333-4333-8333-111111111111"
	sessionID       = "44444444-4444-4444-8444-111111111111"
	missingID       = "99999999-9999-4999-8999-999999999999"

	venueLat = -1.2921
	venueLng = 36.8219
)

// classDay is the date of the fixture session, 09:00-10:00 UTC.
var classDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	store      *memStore
	clock      *clock.Fake
	sclock     *SessionClock
	audit      *auditSpy
	metrics    *MetricsService
	tokens     *TokenService
	gate       *EnrollmentGate
	summaries  *SummaryService
	attendance *AttendanceService
	sessions   *SessionService

	lecturer models.Principal
	student  models.Principal
	outsider models.Principal
	admin    models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, GeofencePolicy{DefaultRadius: 50})
}

func newFixtureWithPolicy(t *testing.T, policy GeofencePolicy) *fixture {
	t.Helper()
	store := newMemStore()
	lecturer := lecturerID
	store.offerings[offeringID] = models.Offering{ID: offeringID, UnitCode: "CS101", UnitName: "Intro", LecturerID: &lecturer}
	store.enrollments[pairKey(studentID, offeringID)] = true
	lat, lng := venueLat, venueLng
	store.sessions[sessionID] = models.ClassSession{
		ID:           sessionID,
		OfferingID:   offeringID,
		OwnerID:      lecturerID,
		ScheduleDate: classDay,
		StartTime:    "09:00:00",
		EndTime:      "10:00:00",
		Venue:        "LT1",
		Latitude:     &lat,
		Longitude:    &lng,
		RadiusMeters: 100,
		Active:       true,
	}

	fake := clock.NewFake(at(9, 30))
	sclock := NewSessionClock(fake, time.UTC)
	audit := &auditSpy{}
	metrics := NewMetricsService()
	logger := zap.NewNop()
	validate := validator.New()

	tokens := NewTokenService(memTokens{store}, memSessions{store}, store, sclock, 5*time.Minute, metrics, audit, logger)
	gate := NewEnrollmentGate(memEnrollments{store}, logger)
	summaries := NewSummaryService(memAttendance{store}, memOfferings{store}, nil, time.Minute, fake, logger)
	attendance := NewAttendanceService(AttendanceServiceDeps{
		Repo:      memAttendance{store},
		Sessions:  memSessions{store},
		Access:    memOfferings{store},
		Tokens:    tokens,
		Gate:      gate,
		Tx:        store,
		Clock:     sclock,
		Summaries: summaries,
		Policy:    policy,
		Metrics:   metrics,
		Audit:     audit,
		Validator: validate,
		Logger:    logger,
	})
	sessions := NewSessionService(memSessions{store}, memOfferings{store}, tokens, gate, store, sclock, 50, audit, validate, logger)

	return &fixture{
		store:      store,
		clock:      fake,
		sclock:     sclock,
		audit:      audit,
		metrics:    metrics,
		tokens:     tokens,
		gate:       gate,
		summaries:  summaries,
		attendance: attendance,
		sessions:   sessions,
		lecturer:   models.LecturerPrincipal(lecturerID),
		student:    models.StudentPrincipal(studentID),
		outsider:   models.StudentPrincipal(outsiderID),
		admin:      models.AdminPrincipal(adminID),
	}
}

// pointAt returns coordinates distance meters north-east of the venue.
func pointAt(distance float64) (*float64, *float64) {
	lat, lng := geo.Offset(venueLat, venueLng, distance, 45)
	return &lat, &lng
}

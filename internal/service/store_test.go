package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/repository"
)

// memStore is an in-memory stand-in for Postgres. Transactions are fully
// serialised and roll back by restoring a snapshot, and the unique
// constraints of the real schema are enforced on insert.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	sessions    map[string]models.ClassSession
	offerings   map[string]models.Offering
	enrollments map[string]bool
	tokens      map[string]models.SessionToken
	records     map[string]models.AttendanceRecord

	consumeErr error
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    map[string]models.ClassSession{},
		offerings:   map[string]models.Offering{},
		enrollments: map[string]bool{},
		tokens:      map[string]models.SessionToken{},
		records:     map[string]models.AttendanceRecord{},
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.txCount++
	snapTokens := make(map[string]models.SessionToken, len(s.tokens))
	for k, v := range s.tokens {
		snapTokens[k] = v
	}
	snapRecords := make(map[string]models.AttendanceRecord, len(s.records))
	for k, v := range s.records {
		snapRecords[k] = v
	}
	snapSessions := make(map[string]models.ClassSession, len(s.sessions))
	for k, v := range s.sessions {
		snapSessions[k] = v
	}
	s.mu.Unlock()

	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.tokens, s.records, s.sessions = snapTokens, snapRecords, snapSessions
		s.mu.Unlock()
	}
	return err
}

func (s *memStore) activeTokens(sessionID string) []models.SessionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SessionToken
	for _, t := range s.tokens {
		if t.SessionID == sessionID && t.Active {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) token(id string) models.SessionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id]
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) recordFor(studentID, sessionID string) (models.AttendanceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[pairKey(studentID, sessionID)]
	return rec, ok
}

// memSessions implements the session repository.
type memSessions struct{ *memStore }

func (r memSessions) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("find class session: %w", sql.ErrNoRows)
	}
	return &s, nil
}

func (r memSessions) FindByIDForUpdate(ctx context.Context, id string) (*models.ClassSession, error) {
	return r.FindByID(ctx, id)
}

func (r memSessions) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ClassSession
	for _, s := range r.sessions {
		if filter.OwnerID != "" && s.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Date != nil && !s.ScheduleDate.Equal(*filter.Date) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memSessions) Create(ctx context.Context, session *models.ClassSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Active = true
	r.sessions[session.ID] = *session
	return nil
}

func (r memSessions) UpdateSchedule(ctx context.Context, session *models.ClassSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// memOfferings implements the offering repository.
type memOfferings struct{ *memStore }

func (r memOfferings) FindByID(ctx context.Context, id string) (*models.Offering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offerings[id]
	if !ok {
		return nil, fmt.Errorf("find offering: %w", sql.ErrNoRows)
	}
	return &o, nil
}

func (r memOfferings) LecturerTeachesStudent(ctx context.Context, lecturerID, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range r.offerings {
		if o.OwnedBy(lecturerID) && r.enrollments[pairKey(studentID, id)] {
			return true, nil
		}
	}
	return false, nil
}

// memEnrollments implements the enrollment repository.
type memEnrollments struct{ *memStore }

func (r memEnrollments) IsActive(ctx context.Context, studentID, offeringID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enrollments[pairKey(studentID, offeringID)], nil
}

func (r memEnrollments) CountActive(ctx context.Context, offeringID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for key, active := range r.enrollments {
		if active && len(key) > len(offeringID) && key[len(key)-len(offeringID):] == offeringID {
			total++
		}
	}
	return total, nil
}

// memTokens implements the token repository.
type memTokens struct{ *memStore }

func (r memTokens) FindActiveBySession(ctx context.Context, sessionID string) (*models.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.SessionID == sessionID && t.Active {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("find active session token: %w", sql.ErrNoRows)
}

func (r memTokens) FindActiveByDigest(ctx context.Context, sessionID, digest string) (*models.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.SessionID == sessionID && t.SecretDigest == digest && t.Active {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("find session token: %w", sql.ErrNoRows)
}

func (r memTokens) ExistsForSession(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (r memTokens) Insert(ctx context.Context, token *models.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.SessionID == token.SessionID && t.Active {
			return fmt.Errorf("insert session token: %w", repository.ErrDuplicate)
		}
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.Active = true
	r.tokens[token.ID] = *token
	return nil
}

func (r memTokens) Deactivate(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || !t.Active {
		return false, nil
	}
	t.Active = false
	r.tokens[id] = t
	return true, nil
}

func (r memTokens) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumeErr != nil {
		return false, r.consumeErr
	}
	t, ok := r.tokens[id]
	if !ok || !t.Active {
		return false, nil
	}
	t.Active = false
	t.ConsumedAt = &at
	r.tokens[id] = t
	return true, nil
}

func (r memTokens) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.Active && t.ExpiresAt.Before(now) {
			t.Active = false
			r.tokens[id] = t
			n++
		}
	}
	return n, nil
}

// memAttendance implements the attendance repository.
type memAttendance struct{ *memStore }

func (r memAttendance) Exists(ctx context.Context, studentID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[pairKey(studentID, sessionID)]
	return ok, nil
}

func (r memAttendance) InsertIfAbsent(ctx context.Context, rec *models.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(rec.StudentID, rec.SessionID)
	if _, ok := r.records[key]; ok {
		return fmt.Errorf("insert attendance record: %w", repository.ErrDuplicate)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.records[key] = *rec
	return nil
}

func (r memAttendance) Upsert(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(rec.StudentID, rec.SessionID)
	if existing, ok := r.records[key]; ok {
		existing.Status = rec.Status
		existing.Note = rec.Note
		existing.MarkedByOwner = true
		existing.UpdatedAt = rec.UpdatedAt
		if rec.ScanTime != nil {
			existing.ScanTime = rec.ScanTime
		}
		r.records[key] = existing
		return &existing, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.MarkedByOwner = true
	r.records[key] = *rec
	saved := *rec
	return &saved, nil
}

func (r memAttendance) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AttendanceRecord
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r memAttendance) ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttendanceRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StudentAttendanceRow
	for _, rec := range r.records {
		if rec.StudentID != studentID {
			continue
		}
		session := r.sessions[rec.SessionID]
		out = append(out, models.StudentAttendanceRow{
			AttendanceRecord: rec,
			OfferingID:       session.OfferingID,
			ScheduleDate:     session.ScheduleDate,
			StartTime:        session.StartTime,
			Venue:            session.Venue,
		})
	}
	return out, nil
}

func (r memAttendance) CountBySession(ctx context.Context, sessionID string) ([]models.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[models.AttendanceStatus]int{}
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			counts[rec.Status]++
		}
	}
	return toStatusCounts(counts), nil
}

func (r memAttendance) CountByStudentOffering(ctx context.Context, studentID, offeringID string) ([]models.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[models.AttendanceStatus]int{}
	for _, rec := range r.records {
		if rec.StudentID == studentID && r.sessions[rec.SessionID].OfferingID == offeringID {
			counts[rec.Status]++
		}
	}
	return toStatusCounts(counts), nil
}

func toStatusCounts(counts map[models.AttendanceStatus]int) []models.StatusCount {
	out := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	return out
}

// auditSpy captures emitted audit events.
type auditSpy struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *auditSpy) Record(ctx context.Context, event models.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *auditSpy) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

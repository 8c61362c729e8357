package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/clock"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

type summaryRepository interface {
	CountByStudentOffering(ctx context.Context, studentID, offeringID string) ([]models.StatusCount, error)
}

type offeringRepository interface {
	FindByID(ctx context.Context, id string) (*models.Offering, error)
	LecturerTeachesStudent(ctx context.Context, lecturerID, studentID string) (bool, error)
}

// SummaryService recomputes attendance rollups from recorded attendance.
// Cached values are a read optimisation. Each pair carries a version counter
// that every write bumps, and summaries are cached under the version read
// before recomputing, so a recompute racing a write can only fill a retired
// slot.
type SummaryService struct {
	repo      summaryRepository
	offerings offeringRepository
	cache     *CacheService
	cacheTTL  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
}

// NewSummaryService constructs the aggregator.
func NewSummaryService(repo summaryRepository, offerings offeringRepository, cache *CacheService, cacheTTL time.Duration, clk clock.Clock, logger *zap.Logger) *SummaryService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{repo: repo, offerings: offerings, cache: cache, cacheTTL: cacheTTL, clock: clk, logger: logger}
}

// Recompute scans every record of the pair and returns a fresh summary.
func (s *SummaryService) Recompute(ctx context.Context, studentID, offeringID string) (*models.AttendanceSummary, error) {
	rows, err := s.repo.CountByStudentOffering(ctx, studentID, offeringID)
	if err != nil {
		return nil, storageFailure(s.logger, "summary recompute failed", err,
			zap.String("student_id", studentID), zap.String("offering_id", offeringID))
	}
	counts := Tally(rows)
	return &models.AttendanceSummary{
		StudentID:        studentID,
		OfferingID:       offeringID,
		AttendanceCounts: counts,
		Percentage:       Percentage(counts),
		ComputedAt:       s.clock.Now(),
	}, nil
}

// GetSummary returns the summary for callers allowed to see it: the student
// themself, an admin, or the lecturer teaching the offering. cached reports
// whether the value came from the cache.
func (s *SummaryService) GetSummary(ctx context.Context, principal models.Principal, studentID, offeringID string) (summary *models.AttendanceSummary, cached bool, err error) {
	if !validID(studentID) || !validID(offeringID) {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	}
	offering, err := s.offerings.FindByID(ctx, offeringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return nil, false, storageFailure(s.logger, "offering lookup failed", err, zap.String("offering_id", offeringID))
	}

	switch {
	case principal.IsAdmin():
	case principal.IsStudent() && principal.ID == studentID:
	case principal.IsLecturer() && offering.OwnedBy(principal.ID):
	default:
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you cannot view this student's attendance")
	}

	version, verr := s.cache.Version(ctx, summaryVersionKey(studentID, offeringID))
	key := summaryCacheKey(studentID, offeringID, version)
	if verr == nil {
		var hit models.AttendanceSummary
		if ok, _ := s.cache.Get(ctx, key, &hit); ok {
			return &hit, true, nil
		}
	}

	summary, err = s.Recompute(ctx, studentID, offeringID)
	if err != nil {
		return nil, false, err
	}
	if verr == nil {
		_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
	}
	return summary, false, nil
}

// Invalidate retires the cached summary of the pair by bumping its version.
func (s *SummaryService) Invalidate(ctx context.Context, studentID, offeringID string) {
	if s == nil {
		return
	}
	version, err := s.cache.Bump(ctx, summaryVersionKey(studentID, offeringID), s.versionTTL())
	if err != nil || version == 0 {
		return
	}
	_ = s.cache.Invalidate(ctx, summaryCacheKey(studentID, offeringID, version-1))
}

// versionTTL keeps a pair's counter alive well past any entry cached under
// it, so an expired counter restarting at zero never revives a stale slot.
func (s *SummaryService) versionTTL() time.Duration {
	if ttl := 4 * s.cacheTTL; ttl > summaryVersionTTL {
		return ttl
	}
	return summaryVersionTTL
}

// Tally folds per-status counts into totals.
func Tally(rows []models.StatusCount) models.AttendanceCounts {
	var counts models.AttendanceCounts
	for _, row := range rows {
		switch row.Status {
		case models.AttendanceStatusPresent:
			counts.Present += row.Count
		case models.AttendanceStatusLate:
			counts.Late += row.Count
		case models.AttendanceStatusAbsent:
			counts.Absent += row.Count
		case models.AttendanceStatusExcused:
			counts.Excused += row.Count
		default:
			continue
		}
		counts.Total += row.Count
	}
	return counts
}

// Percentage is (present+late)/total*100 rounded to two decimals, or zero
// when nothing was recorded.
func Percentage(counts models.AttendanceCounts) float64 {
	if counts.Total <= 0 {
		return 0
	}
	raw := float64(counts.Present+counts.Late) / float64(counts.Total) * 100
	return math.Round(raw*100) / 100
}

const summaryVersionTTL = 7 * 24 * time.Hour

func summaryCacheKey(studentID, offeringID string, version int64) string {
	return fmt.Sprintf("attendance:summary:%s:%s:v%d", studentID, offeringID, version)
}

func summaryVersionKey(studentID, offeringID string) string {
	return fmt.Sprintf("attendance:summary:%s:%s:version", studentID, offeringID)
}

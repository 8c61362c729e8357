package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/clock"
)

var timeOfDayLayouts = []string{"15:04:05.999999999", "15:04"}

// SessionClock derives the temporal state of class sessions. Status is
// computed on every call from the injected clock and never cached.
type SessionClock struct {
	clock clock.Clock
	loc   *time.Location
}

// NewSessionClock constructs a session clock that interprets session dates
// and times in loc.
func NewSessionClock(c clock.Clock, loc *time.Location) *SessionClock {
	if c == nil {
		c = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SessionClock{clock: c, loc: loc}
}

// Now reads the clock once.
func (c *SessionClock) Now() time.Time {
	return c.clock.Now()
}

// Location returns the zone sessions are scheduled in.
func (c *SessionClock) Location() *time.Location {
	return c.loc
}

// Window returns the absolute start and end instants of a session.
func (c *SessionClock) Window(session *models.ClassSession) (time.Time, time.Time, error) {
	if session == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("nil session")
	}
	start, err := c.At(session.ScheduleDate, session.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start time: %w", err)
	}
	end, err := c.At(session.ScheduleDate, session.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end time: %w", err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", session.StartTime, session.EndTime)
	}
	return start, end, nil
}

// At combines a calendar date with a wall-clock time of day.
func (c *SessionClock) At(date time.Time, timeOfDay string) (time.Time, error) {
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), c.loc), nil
}

// StatusAt reports the session state at now. A session with a malformed
// window is treated as ENDED so it can never gate a token open.
func (c *SessionClock) StatusAt(session *models.ClassSession, now time.Time) models.SessionStatus {
	start, end, err := c.Window(session)
	if err != nil {
		return models.SessionStatusEnded
	}
	switch {
	case now.Before(start):
		return models.SessionStatusUpcoming
	case now.After(end):
		return models.SessionStatusEnded
	default:
		return models.SessionStatusOngoing
	}
}

// Status reports the session state at the current instant.
func (c *SessionClock) Status(session *models.ClassSession) models.SessionStatus {
	return c.StatusAt(session, c.clock.Now())
}

// CanIssueTokenAt reports whether a token may be issued at now.
func (c *SessionClock) CanIssueTokenAt(session *models.ClassSession, now time.Time) bool {
	return c.StatusAt(session, now) == models.SessionStatusOngoing
}

// CanIssueToken reports whether a token may be issued right now.
func (c *SessionClock) CanIssueToken(session *models.ClassSession) bool {
	return c.CanIssueTokenAt(session, c.clock.Now())
}

// Today returns midnight of the current date in the session zone.
func (c *SessionClock) Today() time.Time {
	y, m, d := c.clock.Now().In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS with optional fractional seconds.
func ParseTimeOfDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time of day %q", raw)
}

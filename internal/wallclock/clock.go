package wallclock

import (
	"time"
	_ "time/tzdata"

	"github.com/benbjohnson/clock"
)

// Service answers time questions in one fixed location.
// The underlying clock is injectable so tests can drive time.
type Service struct {
	clk clock.Clock
	loc *time.Location
}

func New(clk clock.Clock, loc *time.Location) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{clk: clk, loc: loc}
}

func (s *Service) Clock() clock.Clock       { return s.clk }
func (s *Service) Location() *time.Location { return s.loc }
func (s *Service) Now() time.Time           { return s.clk.Now().In(s.loc) }

// Next is NextOccurrence at the current time.
func (s *Service) Next(t TimeOfDay) time.Time { return NextOccurrence(s.Now(), t) }

// NextDay is NextDayOccurrence at the current time.
func (s *Service) NextDay(t TimeOfDay) time.Time { return NextDayOccurrence(s.Now(), t) }

// On returns t on the calendar date of day, in day's location.
func On(day time.Time, t TimeOfDay) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// NextOccurrence returns today's t if it is not before now, otherwise tomorrow's.
func NextOccurrence(now time.Time, t TimeOfDay) time.Time {
	at := On(now, t)
	if at.Before(now) {
		at = On(now.AddDate(0, 0, 1), t)
	}
	return at
}

// NextDayOccurrence returns t on the calendar day after now's date,
// whether or not today's occurrence has happened yet.
func NextDayOccurrence(now time.Time, t TimeOfDay) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, t.Hour, t.Minute, 0, 0, now.Location())
}

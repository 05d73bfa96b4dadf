package notification

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Validate checks the schedule type, unit, offset and time bounds.
func (s Schedule) Validate() error {
	switch s.Type {
	case ScheduleImmediate:
	case ScheduleBeforeAppointment, ScheduleAfterAppointment:
		if s.Offset <= 0 {
			return fmt.Errorf("%w: offset must be a positive number, got %d", ErrInvalidSchedule, s.Offset)
		}
		switch s.Unit {
		case UnitHours, UnitDays, UnitWeeks, UnitMonths:
		default:
			return fmt.Errorf("%w: unknown unit %q", ErrInvalidSchedule, s.Unit)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
	earliest, err := parseClock(s.EarliestTime)
	if err != nil {
		return fmt.Errorf("%w: earliest_time: %v", ErrInvalidSchedule, err)
	}
	latest, err := parseClock(s.LatestTime)
	if err != nil {
		return fmt.Errorf("%w: latest_time: %v", ErrInvalidSchedule, err)
	}
	if earliest >= 0 && latest >= 0 && earliest > latest {
		return fmt.Errorf("%w: earliest_time %s is after latest_time %s", ErrInvalidSchedule, s.EarliestTime, s.LatestTime)
	}
	return nil
}

// SendTime computes when a message for an appointment starting at start is
// due. Hours are exact durations; days, weeks and months follow the
// calendar, so "1 month after" April 15 is May 15.
func SendTime(start time.Time, s Schedule, now time.Time) (time.Time, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}
	if s.Type == ScheduleImmediate {
		return now, nil
	}
	n := s.Offset
	if s.Type == ScheduleBeforeAppointment {
		n = -n
	}
	switch s.Unit {
	case UnitHours:
		return start.Add(time.Duration(n) * time.Hour), nil
	case UnitDays:
		return start.AddDate(0, 0, n), nil
	case UnitWeeks:
		return start.AddDate(0, 0, 7*n), nil
	default:
		return start.AddDate(0, n, 0), nil
	}
}

// parseClock parses "HH:MM" into minutes after midnight. Empty input
// returns -1.
func parseClock(s string) (int, error) {
	if s == "" {
		return -1, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Window restricts send times to allowed hours and days.
type Window struct {
	earliest int
	latest   int
	workDays bool
	loc      *time.Location
}

// Window returns the sending window of a validated schedule in loc.
func (s Schedule) Window(loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	earliest, _ := parseClock(s.EarliestTime)
	latest, _ := parseClock(s.LatestTime)
	return Window{earliest: earliest, latest: latest, workDays: s.WorkDaysOnly, loc: loc}
}

// Adjust moves t forward to the first moment inside the window. A time
// before the earliest bound moves to the earliest bound of the same day; a
// time after the latest bound or on a weekend moves to the earliest bound
// of the next allowed day.
func (w Window) Adjust(t time.Time) time.Time {
	t = t.In(w.loc)
	for i := 0; i < 8; i++ {
		minutes := t.Hour()*60 + t.Minute()
		switch {
		case w.workDays && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday):
			t = w.nextDay(t)
		case w.latest >= 0 && minutes > w.latest:
			t = w.nextDay(t)
		case w.earliest >= 0 && minutes < w.earliest:
			t = w.at(t.Year(), t.Month(), t.Day())
		default:
			return t
		}
	}
	return t
}

func (w Window) nextDay(t time.Time) time.Time {
	return w.at(t.Year(), t.Month(), t.Day()+1)
}

func (w Window) at(y int, m time.Month, d int) time.Time {
	clock := w.earliest
	if clock < 0 {
		clock = 0
	}
	return time.Date(y, m, d, clock/60, clock%60, 0, 0, w.loc)
}

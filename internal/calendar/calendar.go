// Package calendar converts between calendar days in the business time zone,
// minute-of-day offsets and UTC instants.
//
// A calendar day is carried as a time.Time at UTC midnight (the shape pgx
// returns for a DATE column). Minute offsets are elapsed minutes since local
// midnight of that day in the business zone, so on DST transition days they
// are not wall-clock minutes.
package calendar

import (
	"fmt"
	"time"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	MinutesPerDay = 24 * 60
)

// Calendar is bound to one business time zone.
type Calendar struct {
	loc *time.Location
}

func New(zone string) (Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return Calendar{loc: loc}, nil
}

// Must panics when zone cannot be loaded. Intended for tests and fixtures.
func Must(zone string) Calendar {
	c, err := New(zone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day truncates t to its civil date (UTC midnight), ignoring the zone of t.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses yyyy-MM-dd into a civil date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date", apperr.ErrMissingFields)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be yyyy-MM-dd", apperr.ErrInvalidInput, s)
	}
	return t, nil
}

// ParseClock parses HH:mm into minutes since midnight.
func ParseClock(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: time", apperr.ErrMissingFields)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:mm", apperr.ErrInvalidInput, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatDate renders a civil date as yyyy-MM-dd.
func FormatDate(day time.Time) string {
	return day.Format(DateLayout)
}

// FormatMinute renders a minute offset as HH:mm, wrapping past midnight.
func FormatMinute(m int) string {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Midnight is the instant local midnight of day begins in the business zone.
func (c Calendar) Midnight(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location()).UTC()
}

// Window returns the UTC instants for a booking starting startMinute minutes
// after local midnight of day and lasting duration minutes.
func (c Calendar) Window(day time.Time, startMinute, duration int) (time.Time, time.Time) {
	start := c.Midnight(day).Add(time.Duration(startMinute) * time.Minute)
	return start, start.Add(time.Duration(duration) * time.Minute)
}

// MinuteOf is the number of whole minutes between local midnight of day and t.
func (c Calendar) MinuteOf(day, t time.Time) int {
	return int(t.Sub(c.Midnight(day)) / time.Minute)
}

// DayBounds returns [midnight, next midnight) of day as UTC instants.
func (c Calendar) DayBounds(day time.Time) (time.Time, time.Time) {
	return c.Midnight(day), c.Midnight(day.AddDate(0, 0, 1))
}

// Today is the civil date of now in the business zone.
func (c Calendar) Today(now time.Time) time.Time {
	return Day(now.In(c.Location()))
}

// MonthBounds returns [first midnight, next month's first midnight) of the
// local month containing day.
func (c Calendar) MonthBounds(day time.Time) (time.Time, time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return c.Midnight(first), c.Midnight(first.AddDate(0, 1, 0))
}

// EachDay calls fn for every civil date in [from, to], stepping by step days.
func EachDay(from, to time.Time, step int, fn func(day time.Time)) {
	if step <= 0 {
		step = 1
	}
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, step) {
		fn(d)
	}
}

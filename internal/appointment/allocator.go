package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

// DayReader is the slice of the availability store the allocator reads.
type DayReader interface {
	ListDays(ctx context.Context, from, to time.Time, psychologistID *uuid.UUID) ([]availability.Day, error)
}

// Allocation describes the window a new or moved appointment needs.
type Allocation struct {
	Day time.Time

	// WindowStart and WindowEnd are grid minutes a slot must cover.
	WindowStart int
	WindowEnd   int

	// RangeStart and RangeEnd bound the instants no existing appointment of
	// the chosen psychologist may intersect.
	RangeStart time.Time
	RangeEnd   time.Time

	// PsychologistID restricts the search to one psychologist.
	PsychologistID *uuid.UUID
	// Exclude ignores one appointment when checking conflicts, so an
	// appointment being rescheduled does not collide with itself.
	Exclude *uuid.UUID
}

// Allocator picks the psychologist for a booking.
type Allocator struct {
	days     DayReader
	bookings availability.BookingSource
	roster   availability.Roster
	cal      calendar.Calendar
}

func NewAllocator(days DayReader, bookings availability.BookingSource, roster availability.Roster, cal calendar.Calendar) *Allocator {
	return &Allocator{days: days, bookings: bookings, roster: roster, cal: cal}
}

// Pick returns the least loaded active psychologist whose availability covers
// the window and who has no appointment intersecting the guard range. Ties go
// to the smaller id. ok is false when nobody qualifies.
func (a *Allocator) Pick(ctx context.Context, req Allocation) (uuid.UUID, bool, error) {
	day := calendar.Day(req.Day)

	records, err := a.days.ListDays(ctx, day, day, req.PsychologistID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load availability: %w", err)
	}

	activeIDs, err := a.roster.ActivePsychologists(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load roster: %w", err)
	}
	active := make(map[uuid.UUID]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	var candidates []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, d := range records {
		if seen[d.PsychologistID] || !active[d.PsychologistID] {
			continue
		}
		if !d.Covers(req.WindowStart, req.WindowEnd) {
			continue
		}
		seen[d.PsychologistID] = true
		candidates = append(candidates, d.PsychologistID)
	}
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	dayStart, dayEnd := a.cal.DayBounds(day)
	from, to := earliest(dayStart, req.RangeStart), latest(dayEnd, req.RangeEnd)
	bookings, err := a.bookings.ListBookings(ctx, from, to, candidates)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load bookings: %w", err)
	}

	conflicted := make(map[uuid.UUID]bool)
	load := make(map[uuid.UUID]int)
	for _, b := range bookings {
		if req.Exclude != nil && b.AppointmentID == *req.Exclude {
			continue
		}
		if b.Start.Before(req.RangeEnd) && b.End.After(req.RangeStart) {
			conflicted[b.PsychologistID] = true
		}
		if !b.Start.Before(dayStart) && b.Start.Before(dayEnd) {
			load[b.PsychologistID]++
		}
	}

	free := candidates[:0]
	for _, id := range candidates {
		if !conflicted[id] {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		return uuid.Nil, false, nil
	}

	sort.Slice(free, func(i, j int) bool {
		if load[free[i]] != load[free[j]] {
			return load[free[i]] < load[free[j]]
		}
		return free[i].String() < free[j].String()
	})
	return free[0], true, nil
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

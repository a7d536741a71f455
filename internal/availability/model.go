package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

const (
	// GridMinutes is the spacing of the bookable markers returned by slot search.
	GridMinutes = 30
	// OccupiedLead is how far before an appointment start the grid is blocked.
	OccupiedLead = 30
	// SelfBookingLead hides today's markers that start sooner than this.
	SelfBookingLead = time.Hour
	// MaxDaysPerSave caps one saveAvailability call to a week of day records.
	MaxDaysPerSave = 7
)

// Slot is a minute range [Start, End) on one day record. Recurring slots carry
// the id of the slot they were projected from.
type Slot struct {
	ID                  uuid.UUID  `json:"id"`
	Start               int        `json:"start"`
	End                 int        `json:"end"`
	Recurring           bool       `json:"recurring,omitempty"`
	RecurringEnd        *time.Time `json:"recurringEnd,omitempty"`
	RecurringOriginSlot *uuid.UUID `json:"recurringOriginSlot,omitempty"`
}

// Covers reports whether the slot contains the whole [start, end) window.
func (s Slot) Covers(start, end int) bool {
	return s.Start <= start && s.End >= end
}

func (s Slot) validate() error {
	if s.Start < 0 || s.End > calendar.MinutesPerDay || s.Start >= s.End {
		return fmt.Errorf("%w: slot [%d,%d) must satisfy 0 <= start < end <= %d",
			apperr.ErrInvalidInput, s.Start, s.End, calendar.MinutesPerDay)
	}
	return nil
}

// checkOverlap rejects slots of one day that share a minute. Touching slots
// (one ends where the next starts) are fine.
func checkOverlap(slots []Slot) error {
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Start < prev.End {
			return fmt.Errorf("%w: slots [%d,%d) and [%d,%d) overlap",
				apperr.ErrInvalidInput, prev.Start, prev.End, cur.Start, cur.End)
		}
	}
	return nil
}

// OriginatesFrom reports whether s was projected from the recurring slot id.
func (s Slot) OriginatesFrom(id uuid.UUID) bool {
	return s.RecurringOriginSlot != nil && *s.RecurringOriginSlot == id
}

// Day is a psychologist's availability on one calendar date.
type Day struct {
	ID             uuid.UUID
	PsychologistID uuid.UUID
	Date           time.Time
	Slots          []Slot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (d Day) slotIndex(id uuid.UUID) int {
	for i, s := range d.Slots {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Covers reports whether any slot of the day contains [start, end).
func (d Day) Covers(start, end int) bool {
	for _, s := range d.Slots {
		if s.Covers(start, end) {
			return true
		}
	}
	return false
}

// Booking is the part of a non-cancelled appointment the availability engine
// needs to subtract occupied time.
type Booking struct {
	AppointmentID  uuid.UUID
	PsychologistID uuid.UUID
	Start          time.Time
	End            time.Time
}

// SlotQuery selects the days searched by FindSlots. Dates are inclusive.
type SlotQuery struct {
	From           time.Time
	To             time.Time
	PsychologistID *uuid.UUID
}

// DaySlots is one day of search results: bookable HH:mm markers, ascending.
type DaySlots struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// RecurringSlot marks an existing slot recurring weekly until RecurringEnd.
type RecurringSlot struct {
	OriginSlotID uuid.UUID
	Date         time.Time
	Start        int
	End          int
	RecurringEnd time.Time
}

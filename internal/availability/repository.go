package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
)

var (
	ErrDayNotFound  = fmt.Errorf("%w: availability day not found", apperr.ErrNotFound)
	ErrSlotNotFound = fmt.Errorf("%w: availability slot not found", apperr.ErrNotFound)
)

// Repository persists day records. Date arguments are civil dates and ranges
// are inclusive on both ends.
type Repository interface {
	ListDays(ctx context.Context, from, to time.Time, psychologistID *uuid.UUID) ([]Day, error)
	GetDay(ctx context.Context, psychologistID uuid.UUID, date time.Time) (*Day, error)

	// ReplaceDays deletes every record of the psychologist in [from, to] and
	// inserts days in their place.
	ReplaceDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, days []Day) ([]Day, error)

	// SaveDay inserts the day or overwrites the slots of the existing record
	// with the same (psychologist, date).
	SaveDay(ctx context.Context, day *Day) error
	DeleteDay(ctx context.Context, id uuid.UUID) error

	// ListDaysWithOrigin returns days strictly after the given date holding a
	// slot projected from originSlotID.
	ListDaysWithOrigin(ctx context.Context, psychologistID, originSlotID uuid.UUID, after time.Time) ([]Day, error)

	WithinTx(ctx context.Context, fn func(Repository) error) error
}

// BookingSource lists non-cancelled appointments intersecting [from, to).
type BookingSource interface {
	ListBookings(ctx context.Context, from, to time.Time, psychologistIDs []uuid.UUID) ([]Booking, error)
}

// Roster lists psychologists that are both active and confirmed.
type Roster interface {
	ActivePsychologists(ctx context.Context) ([]uuid.UUID, error)
}

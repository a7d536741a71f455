package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", apperr.ErrNotFound)
	ErrTreatmentNotFound   = fmt.Errorf("%w: treatment not found", apperr.ErrNotFound)

	// ErrNumberTaken is returned by InsertAppointment when another booking
	// committed the same consultation number first.
	ErrNumberTaken = errors.New("consultation number already taken")
	// ErrSlotTaken is returned when the psychologist already has an active
	// appointment starting at the same instant.
	ErrSlotTaken = fmt.Errorf("%w: psychologist already booked at this time", apperr.ErrSlotConflict)
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// WithinTx runs fn against a repository bound to one transaction.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListAppointments returns one page of matches and the total number of
	// matches.
	ListAppointments(ctx context.Context, f ListFilter, p Page) ([]Appointment, int, error)

	// Numbering and creation
	MaxConsultationNumber(ctx context.Context) (int, error)
	InsertAppointment(ctx context.Context, a *Appointment) error

	// Transitions
	UpdateWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, by CancelledBy, at time.Time, paid bool) (*Appointment, error)
	Finish(ctx context.Context, id uuid.UUID, fields FinishFields) error

	// Quota and allocation reads
	CountUserAppointments(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
	ListBookings(ctx context.Context, from, to time.Time, psychologistIDs []uuid.UUID) ([]availability.Booking, error)

	// Reminder worker
	ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Treatments
	GetOpenTreatment(ctx context.Context, userID uuid.UUID) (*Treatment, error)
	InsertTreatment(ctx context.Context, t *Treatment) error
	UpdateTreatment(ctx context.Context, t *Treatment) error

	// User writes that commit together with an appointment
	AssignPsychologist(ctx context.Context, userID, psychologistID uuid.UUID) error
	UpdateUserProfile(ctx context.Context, userID uuid.UUID, p directory.Profile) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

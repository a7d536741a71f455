package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
)

type Service struct {
	repo     Repository
	bookings BookingSource
	roster   Roster
	cal      calendar.Calendar
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, bookings BookingSource, roster Roster, cal calendar.Calendar, rec *metrics.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		bookings: bookings,
		roster:   roster,
		cal:      cal,
		metrics:  rec,
		logger:   logger.With().Str("component", "availability").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the wall clock used for the "today" cutoff.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: startDate and endDate are required", apperr.ErrMissingFields)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: endDate %s is before startDate %s",
			apperr.ErrInvalidInput, calendar.FormatDate(to), calendar.FormatDate(from))
	}
	return nil
}

// GetDays returns the psychologist's day records in [from, to].
func (s *Service) GetDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]Day, error) {
	from, to = calendar.Day(from), calendar.Day(to)
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	days, err := s.repo.ListDays(ctx, from, to, &psychologistID)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []Day{}
	}
	return days, nil
}

// SaveDays replaces every day record of the psychologist in [from, to] with
// days. Slots without an id get one.
func (s *Service) SaveDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, days []Day) ([]Day, error) {
	from, to = calendar.Day(from), calendar.Day(to)
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	if days == nil {
		return nil, fmt.Errorf("%w: days", apperr.ErrMissingFields)
	}
	if len(days) > MaxDaysPerSave {
		return nil, fmt.Errorf("%w: at most %d days per save, got %d",
			apperr.ErrInvalidInput, MaxDaysPerSave, len(days))
	}

	seen := make(map[time.Time]bool, len(days))
	prepared := make([]Day, 0, len(days))
	for _, d := range days {
		date := calendar.Day(d.Date)
		if date.Before(from) || date.After(to) {
			return nil, fmt.Errorf("%w: day %s outside %s..%s", apperr.ErrInvalidInput,
				calendar.FormatDate(date), calendar.FormatDate(from), calendar.FormatDate(to))
		}
		if seen[date] {
			return nil, fmt.Errorf("%w: day %s given twice", apperr.ErrInvalidInput, calendar.FormatDate(date))
		}
		seen[date] = true

		slots := make([]Slot, 0, len(d.Slots))
		for _, sl := range d.Slots {
			if err := sl.validate(); err != nil {
				return nil, err
			}
			if sl.ID == uuid.Nil {
				sl.ID = uuid.New()
			}
			slots = append(slots, sl)
		}
		if err := checkOverlap(slots); err != nil {
			return nil, fmt.Errorf("day %s: %w", calendar.FormatDate(date), err)
		}

		prepared = append(prepared, Day{
			ID:             d.ID,
			PsychologistID: psychologistID,
			Date:           date,
			Slots:          slots,
		})
	}

	saved, err := s.repo.ReplaceDays(ctx, psychologistID, from, to, prepared)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = []Day{}
	}

	s.logger.Info().
		Str("psychologist_id", psychologistID.String()).
		Str("from", calendar.FormatDate(from)).
		Str("to", calendar.FormatDate(to)).
		Int("days", len(saved)).
		Msg("availability saved")
	return saved, nil
}

package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentFinished    = "APPOINTMENT_FINISHED"
	EventAppointmentReminded    = "APPOINTMENT_REMINDED"
)

// ChangeCutoff is how close to its start an appointment can still be moved
// or cancelled free of charge.
const ChangeCutoff = time.Hour

var (
	ErrBusinessQuotaExceeded   = fmt.Errorf("%w: business has no consultations left", apperr.ErrQuotaExceeded)
	ErrMonthlyQuotaExceeded    = fmt.Errorf("%w: monthly consultation limit reached", apperr.ErrQuotaExceeded)
	ErrNoPsychologistAvailable = fmt.Errorf("%w: no psychologist available at this time", apperr.ErrNoCapacity)
	ErrPsychologistUnavailable = fmt.Errorf("%w: psychologist is not available at this time", apperr.ErrSlotConflict)
	ErrSlotBeingBooked         = fmt.Errorf("%w: day is currently being booked, please retry", apperr.ErrSlotConflict)
	ErrNotOwner                = fmt.Errorf("%w: appointment belongs to someone else", apperr.ErrPermissionDenied)
	ErrChangeTooLate           = fmt.Errorf("%w: appointment starts in less than an hour", apperr.ErrPermissionDenied)
	ErrAppointmentClosed       = fmt.Errorf("%w: appointment is already finished or cancelled", apperr.ErrInvalidInput)
	ErrStartInPast             = fmt.Errorf("%w: appointment must start in the future", apperr.ErrInvalidInput)
	ErrTreatmentIntake         = fmt.Errorf("%w: goals, anamnesis and diagnostics are required to open a treatment", apperr.ErrMissingFields)
	ErrNumberingExhausted      = fmt.Errorf("%w: could not allocate a consultation number", apperr.ErrInternal)
)

// Directory is the user and business lookup the lifecycle depends on.
type Directory interface {
	BusinessQuota(ctx context.Context, userID uuid.UUID) (directory.Quota, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*directory.User, error)
}

// Notifier receives committed transitions. It must not block.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notify.Event) {}

type Deps struct {
	Days      DayReader
	Roster    availability.Roster
	Directory Directory
	Locker    redisclient.Locker
	Notifier  Notifier
	Metrics   *metrics.Recorder
}

type Service struct {
	repo     Repository
	alloc    *Allocator
	dir      Directory
	locker   redisclient.Locker
	notifier Notifier
	cal      calendar.Calendar
	cfg      config.Config
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, cfg config.Config, cal calendar.Calendar, deps Deps, logger zerolog.Logger) *Service {
	if cfg.AppointmentDuration <= 0 {
		cfg.AppointmentDuration = 45
	}
	if cfg.NumberingMaxAttempts <= 0 {
		cfg.NumberingMaxAttempts = 20
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Service{
		repo:     repo,
		alloc:    NewAllocator(deps.Days, repo, deps.Roster, cal),
		dir:      deps.Directory,
		locker:   deps.Locker,
		notifier: notifier,
		cal:      cal,
		cfg:      cfg,
		metrics:  deps.Metrics,
		logger:   logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the wall clock used for cutoffs and timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func parseSlot(date, clock string) (time.Time, int, error) {
	if date == "" || clock == "" {
		return time.Time{}, 0, fmt.Errorf("%w: date and time", apperr.ErrMissingFields)
	}
	day, err := calendar.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, err
	}
	minute, err := calendar.ParseClock(clock)
	if err != nil {
		return time.Time{}, 0, err
	}
	return day, minute, nil
}

// checkQuota fails when the user's business has used every consultation it
// bought, or when the user reached the monthly cap for the month of day.
func (s *Service) checkQuota(ctx context.Context, userID uuid.UUID, day time.Time) (directory.Quota, error) {
	quota, err := s.dir.BusinessQuota(ctx, userID)
	if err != nil {
		return directory.Quota{}, err
	}
	if quota.Exhausted() {
		return directory.Quota{}, ErrBusinessQuotaExceeded
	}

	if quota.PerUser > 0 {
		from, to := s.cal.MonthBounds(day)
		n, err := s.repo.CountUserAppointments(ctx, userID, from, to)
		if err != nil {
			return directory.Quota{}, err
		}
		if n >= quota.PerUser {
			return directory.Quota{}, ErrMonthlyQuotaExceeded
		}
	}
	return quota, nil
}

func (s *Service) allocate(ctx context.Context, req Allocation) (uuid.UUID, error) {
	id, ok, err := s.alloc.Pick(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		if req.PsychologistID != nil {
			return uuid.Nil, ErrPsychologistUnavailable
		}
		return uuid.Nil, ErrNoPsychologistAvailable
	}
	return id, nil
}

func (s *Service) withDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithDayLock(ctx, day, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrQuotaExceeded):
		return metrics.OutcomeQuota
	case errors.Is(err, apperr.ErrNoCapacity):
		return metrics.OutcomeNoCapacity
	case errors.Is(err, apperr.ErrSlotConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// Book creates an appointment for the user at date+clock in the business
// zone. A user already assigned to a psychologist can only book with them;
// otherwise the least loaded available psychologist is picked and assigned.
func (s *Service) Book(ctx context.Context, userID uuid.UUID, date, clock string) (*Appointment, error) {
	day, minute, err := parseSlot(date, clock)
	if err != nil {
		return nil, err
	}

	duration := s.cfg.AppointmentDuration
	start, end := s.cal.Window(day, minute, duration)
	if !start.After(s.now()) {
		return nil, ErrStartInPast
	}

	var created *Appointment

	err = s.withDayLock(ctx, day, func(lockCtx context.Context) error {
		quota, err := s.checkQuota(lockCtx, userID, day)
		if err != nil {
			return err
		}

		user, err := s.dir.GetUser(lockCtx, userID)
		if err != nil {
			return err
		}

		psychologistID, err := s.allocate(lockCtx, Allocation{
			Day:            day,
			WindowStart:    minute,
			WindowEnd:      minute + duration,
			RangeStart:     start,
			RangeEnd:       end,
			PsychologistID: user.PsychologistID,
		})
		if err != nil {
			return err
		}

		appt := &Appointment{
			UserID:         userID,
			PsychologistID: psychologistID,
			BusinessID:     quota.BusinessID,
			StartDate:      start,
			EndDate:        end,
			Duration:       duration,
		}
		err = s.repo.WithinTx(lockCtx, func(repo Repository) error {
			if err := s.insertNumbered(lockCtx, repo, appt); err != nil {
				return err
			}
			if user.PsychologistID == nil {
				return repo.AssignPsychologist(lockCtx, userID, psychologistID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		s.metrics.Booking(bookingOutcome(err))
		return nil, err
	}

	s.metrics.Booking(metrics.OutcomeBooked)
	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"user_id":         userID.String(),
		"psychologist_id": created.PsychologistID.String(),
		"number":          created.Number,
		"start_date":      created.StartDate,
	})
	s.publish(ctx, notify.EventBooked, created, nil)

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("number", created.Number).
		Str("psychologist_id", created.PsychologistID.String()).
		Time("start", created.StartDate).
		Msg("appointment booked")
	return created, nil
}

// SubmitReport finishes an appointment owned by the psychologist, opens or
// updates the user's treatment and optionally books a follow-up with the same
// psychologist. Either all of it is stored or none of it. It returns the
// follow-up appointment, if one was booked.
//
// When the user's business has no consultations left, or the user reached
// the monthly cap or has no active business, the report is still stored and
// the follow-up is skipped.
func (s *Service) SubmitReport(ctx context.Context, id, psychologistID uuid.UUID, in ReportInput) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PsychologistID != psychologistID || !appt.Scheduled() {
		return nil, ErrAppointmentNotFound
	}

	if (in.NextDate == "") != (in.NextTime == "") {
		return nil, fmt.Errorf("%w: nextDate and nextTime go together", apperr.ErrMissingFields)
	}
	profile, err := profileOf(in)
	if err != nil {
		return nil, err
	}

	var next *Appointment

	if in.NextDate == "" {
		if err := s.finish(ctx, appt, in, profile, nil); err != nil {
			return nil, err
		}
	} else {
		day, minute, err := parseSlot(in.NextDate, in.NextTime)
		if err != nil {
			return nil, err
		}
		duration := s.cfg.AppointmentDuration
		start, end := s.cal.Window(day, minute, duration)
		if !start.After(s.now()) {
			return nil, ErrStartInPast
		}

		err = s.withDayLock(ctx, day, func(lockCtx context.Context) error {
			quota, err := s.checkQuota(lockCtx, appt.UserID, day)
			if errors.Is(err, apperr.ErrQuotaExceeded) || errors.Is(err, directory.ErrBusinessNotFound) {
				s.logger.Info().
					Err(err).
					Str("appointment_id", appt.ID.String()).
					Str("user_id", appt.UserID.String()).
					Msg("follow-up skipped")
				return s.finish(lockCtx, appt, in, profile, nil)
			}
			if err != nil {
				return err
			}

			if _, err := s.allocate(lockCtx, Allocation{
				Day:            day,
				WindowStart:    minute,
				WindowEnd:      minute + duration,
				RangeStart:     start,
				RangeEnd:       end,
				PsychologistID: &psychologistID,
			}); err != nil {
				return err
			}

			candidate := &Appointment{
				UserID:         appt.UserID,
				PsychologistID: psychologistID,
				BusinessID:     quota.BusinessID,
				StartDate:      start,
				EndDate:        end,
				Duration:       duration,
			}
			if err := s.finish(lockCtx, appt, in, profile, candidate); err != nil {
				return err
			}
			next = candidate
			return nil
		})
		if err != nil {
			s.metrics.Booking(bookingOutcome(err))
			return nil, err
		}
		if next != nil {
			s.metrics.Booking(metrics.OutcomeBooked)
		} else {
			s.metrics.Booking(metrics.OutcomeQuota)
		}
	}

	payload := map[string]any{"psychologist_id": psychologistID.String()}
	if next != nil {
		payload["next_appointment_id"] = next.ID.String()
	}
	s.logEvent(ctx, appt.ID, EventAppointmentFinished, payload)
	s.publish(ctx, notify.EventFinished, appt, nil)

	if next != nil {
		s.logEvent(ctx, next.ID, EventAppointmentBooked, map[string]any{
			"user_id":         next.UserID.String(),
			"psychologist_id": psychologistID.String(),
			"number":          next.Number,
			"start_date":      next.StartDate,
			"follow_up_of":    appt.ID.String(),
		})
		s.publish(ctx, notify.EventBooked, next, nil)
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Bool("follow_up", next != nil).
		Msg("report submitted")
	return next, nil
}

func profileOf(in ReportInput) (directory.Profile, error) {
	p := directory.Profile{ExternalName: in.ExternalName}
	if in.Birthdate != "" {
		birthdate, err := calendar.ParseDate(in.Birthdate)
		if err != nil {
			return directory.Profile{}, err
		}
		p.Birthdate = &birthdate
	}
	return p, nil
}

// finish writes the treatment, the profile correction, the optional
// follow-up and the finished appointment in one transaction.
func (s *Service) finish(ctx context.Context, appt *Appointment, in ReportInput, profile directory.Profile, next *Appointment) error {
	return s.repo.WithinTx(ctx, func(repo Repository) error {
		var discharge *time.Time
		if in.ClinicalDischarge {
			end := appt.EndDate
			discharge = &end
		}

		treatment, err := repo.GetOpenTreatment(ctx, appt.UserID)
		switch {
		case errors.Is(err, ErrTreatmentNotFound):
			if in.Goals == "" || in.Anamnesis == "" || len(in.Diagnostics) == 0 {
				return ErrTreatmentIntake
			}
			treatment = &Treatment{
				UserID:                appt.UserID,
				Diagnostics:           in.Diagnostics,
				StartDate:             appt.StartDate,
				Medication:            in.Medication,
				MedicationDescription: in.MedicationDescription,
				Goals:                 in.Goals,
				Anamnesis:             in.Anamnesis,
				ClinicalDischarge:     discharge,
			}
			if err := repo.InsertTreatment(ctx, treatment); err != nil {
				return err
			}

		case err != nil:
			return fmt.Errorf("load open treatment: %w", err)

		default:
			if len(in.Diagnostics) > 0 {
				treatment.Diagnostics = in.Diagnostics
			}
			if in.Goals != "" {
				treatment.Goals = in.Goals
			}
			if in.Anamnesis != "" {
				treatment.Anamnesis = in.Anamnesis
			}
			treatment.Medication = in.Medication
			treatment.MedicationDescription = in.MedicationDescription
			treatment.ClinicalDischarge = discharge
			if err := repo.UpdateTreatment(ctx, treatment); err != nil {
				return err
			}
		}

		if !profile.Empty() {
			if err := repo.UpdateUserProfile(ctx, appt.UserID, profile); err != nil {
				return err
			}
		}

		var nextID *uuid.UUID
		if next != nil {
			treatmentID := treatment.ID
			next.TreatmentID = &treatmentID
			if err := s.insertNumbered(ctx, repo, next); err != nil {
				return err
			}
			nextID = &next.ID
		}

		return repo.Finish(ctx, appt.ID, FinishFields{
			TreatmentID:           treatment.ID,
			Diagnostics:           in.Diagnostics,
			ClinicalIntervention:  in.ClinicalIntervention,
			ClinicalRecord:        in.ClinicalRecord,
			GoalsNextConsultation: in.GoalsNextConsultation,
			NextAppointmentID:     nextID,
		})
	})
}

// Reschedule moves the user's appointment to date+clock with the same
// psychologist. Only allowed while the current start is more than
// ChangeCutoff away.
func (s *Service) Reschedule(ctx context.Context, id, userID uuid.UUID, date, clock string) (*Appointment, error) {
	day, minute, err := parseSlot(date, clock)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.UserID != userID {
		return nil, ErrNotOwner
	}
	if !appt.Scheduled() {
		return nil, ErrAppointmentClosed
	}

	now := s.now()
	if !appt.StartDate.After(now.Add(ChangeCutoff)) {
		return nil, ErrChangeTooLate
	}

	start, end := s.cal.Window(day, minute, appt.Duration)
	if !start.After(now) {
		return nil, ErrStartInPast
	}
	previous := appt.StartDate

	var updated *Appointment
	err = s.withDayLock(ctx, day, func(lockCtx context.Context) error {
		if _, err := s.allocate(lockCtx, Allocation{
			Day:            day,
			WindowStart:    minute,
			WindowEnd:      minute + appt.Duration,
			RangeStart:     start,
			RangeEnd:       end,
			PsychologistID: &appt.PsychologistID,
			Exclude:        &appt.ID,
		}); err != nil {
			return err
		}

		moved, err := s.repo.UpdateWindow(lockCtx, appt.ID, start, end)
		if err != nil {
			return err
		}
		updated = moved
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from": previous,
		"to":   updated.StartDate,
	})
	s.publish(ctx, notify.EventRescheduled, updated, &previous)

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Time("from", previous).
		Time("to", updated.StartDate).
		Msg("appointment rescheduled")
	return updated, nil
}

func cancellerFor(actor auth.Actor, appt *Appointment) (CancelledBy, error) {
	switch a := actor.(type) {
	case auth.User:
		if a.ID != appt.UserID {
			return "", ErrNotOwner
		}
		return CancelledByUser, nil
	case auth.Psychologist:
		if a.ID != appt.PsychologistID {
			return "", ErrNotOwner
		}
		return CancelledByPsychologist, nil
	case auth.Staff:
		return CancelledByTeam, nil
	default:
		return "", fmt.Errorf("%w: unknown actor", apperr.ErrPermissionDenied)
	}
}

// Cancel marks the appointment cancelled. Cancelling less than ChangeCutoff
// before the start, or after it, is billable. Cancelling twice returns the
// already cancelled appointment unchanged.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	by, err := cancellerFor(actor, appt)
	if err != nil {
		return nil, err
	}
	if appt.Cancelled {
		return appt, nil
	}
	if appt.Finished {
		return nil, ErrAppointmentClosed
	}

	now := s.now()
	paid := appt.StartDate.Before(now.Add(ChangeCutoff))

	cancelled, err := s.repo.Cancel(ctx, appt.ID, by, now, paid)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Cancelled concurrently.
			return s.repo.GetAppointment(ctx, appt.ID)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.metrics.Cancellation(paid)
	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": string(by),
		"paid":         paid,
	})
	s.publish(ctx, notify.EventCancelled, cancelled, nil)

	s.logger.Info().
		Str("appointment_id", cancelled.ID.String()).
		Str("cancelled_by", string(by)).
		Bool("paid", paid).
		Msg("appointment cancelled")
	return cancelled, nil
}

// Get returns an appointment by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// GetReport returns an open appointment of the psychologist together with the
// user's open treatment, if any.
func (s *Service) GetReport(ctx context.Context, id, psychologistID uuid.UUID) (*Report, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PsychologistID != psychologistID || !appt.Scheduled() {
		return nil, ErrAppointmentNotFound
	}

	report := &Report{Appointment: *appt}
	treatment, err := s.repo.GetOpenTreatment(ctx, appt.UserID)
	switch {
	case errors.Is(err, ErrTreatmentNotFound):
	case err != nil:
		return nil, fmt.Errorf("load open treatment: %w", err)
	default:
		report.Treatment = treatment
	}
	return report, nil
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListAppointments returns one page of the appointments matching f, newest
// first unless f.Ascending. Users and psychologists only ever see their own
// appointments whatever f asks for; staff see everything.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, f ListFilter, p Page) (*AppointmentPage, error) {
	switch a := actor.(type) {
	case auth.User:
		id := a.ID
		f.UserID = &id
	case auth.Psychologist:
		id := a.ID
		f.PsychologistID = &id
	case auth.Staff:
	default:
		return nil, fmt.Errorf("%w: unknown actor", apperr.ErrPermissionDenied)
	}

	if p.Limit < 0 || p.Offset < 0 {
		return nil, fmt.Errorf("%w: page and perPage must not be negative", apperr.ErrInvalidInput)
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}

	items, total, err := s.repo.ListAppointments(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Appointment{}
	}
	return &AppointmentPage{Appointments: items, Total: total}, nil
}

// Agenda splits the psychologist's non-cancelled appointments at an hour
// ago: later ones are upcoming, earlier unfinished ones still need a report.
// Both lists are sorted by start.
func (s *Service) Agenda(ctx context.Context, psychologistID uuid.UUID) (*Agenda, error) {
	cutoff := s.now().Add(-ChangeCutoff)
	no := false

	next, _, err := s.repo.ListAppointments(ctx, ListFilter{
		PsychologistID: &psychologistID,
		From:           &cutoff,
		Cancelled:      &no,
		Ascending:      true,
	}, Page{})
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}

	pending, _, err := s.repo.ListAppointments(ctx, ListFilter{
		PsychologistID: &psychologistID,
		To:             &cutoff,
		Cancelled:      &no,
		Finished:       &no,
		Ascending:      true,
	}, Page{})
	if err != nil {
		return nil, fmt.Errorf("list appointments pending report: %w", err)
	}

	if next == nil {
		next = []Appointment{}
	}
	if pending == nil {
		pending = []Appointment{}
	}
	return &Agenda{Next: next, PendingReport: pending}, nil
}

// PastAppointments lists the psychologist's appointments starting on the
// local dates from through to, cancelled ones included, up to an hour ago.
func (s *Service) PastAppointments(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: endDate before startDate", apperr.ErrInvalidInput)
	}

	start, _ := s.cal.DayBounds(from)
	_, end := s.cal.DayBounds(to)
	if cutoff := s.now().Add(-ChangeCutoff); cutoff.Before(end) {
		end = cutoff
	}
	if !start.Before(end) {
		return []Appointment{}, nil
	}

	items, _, err := s.repo.ListAppointments(ctx, ListFilter{
		PsychologistID: &psychologistID,
		From:           &start,
		To:             &end,
		Ascending:      true,
	}, Page{})
	if err != nil {
		return nil, fmt.Errorf("list past appointments: %w", err)
	}
	if items == nil {
		items = []Appointment{}
	}
	return items, nil
}

// SendReminders notifies both parties of every scheduled appointment starting
// within lead from now that has not been reminded yet. It is intended to be
// called by the worker periodically and returns how many were sent.
func (s *Service) SendReminders(ctx context.Context, lead time.Duration) (int, error) {
	now := s.now()
	due, err := s.repo.ListDueReminders(ctx, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		appt := &due[i]
		claimed, err := s.repo.MarkReminded(ctx, appt.ID, now)
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark reminder")
			continue
		}
		if !claimed {
			continue
		}

		s.logEvent(ctx, appt.ID, EventAppointmentReminded, map[string]any{"start_date": appt.StartDate})
		s.publish(ctx, notify.EventReminder, appt, nil)
		sent++
	}
	return sent, nil
}

func (s *Service) publish(ctx context.Context, t notify.EventType, a *Appointment, previous *time.Time) {
	ev := notify.Event{
		Type:           t,
		AppointmentID:  a.ID,
		Number:         a.Number,
		UserID:         a.UserID,
		PsychologistID: a.PsychologistID,
		Start:          a.StartDate,
		PreviousStart:  previous,
		OccurredAt:     s.now(),
	}
	if a.CancelledBy != nil {
		ev.CancelledBy = string(*a.CancelledBy)
	}
	s.notifier.Notify(ctx, ev)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

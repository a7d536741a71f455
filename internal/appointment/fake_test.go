package appointment

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

// memRepo is an in-memory Repository. WithinTx restores the previous state
// when fn fails.
type memRepo struct {
	mu          sync.Mutex
	appts       map[uuid.UUID]Appointment
	treatments  map[uuid.UUID]Treatment
	assignments map[uuid.UUID]uuid.UUID
	profiles    map[uuid.UUID]directory.Profile
	events      []EventLog

	// collisions makes the next n inserts lose the numbering race.
	collisions int
}

func newMemRepo() *memRepo {
	return &memRepo{
		appts:       make(map[uuid.UUID]Appointment),
		treatments:  make(map[uuid.UUID]Treatment),
		assignments: make(map[uuid.UUID]uuid.UUID),
		profiles:    make(map[uuid.UUID]directory.Profile),
	}
}

func (r *memRepo) WithinTx(_ context.Context, fn func(Repository) error) error {
	r.mu.Lock()
	appts := make(map[uuid.UUID]Appointment, len(r.appts))
	for k, v := range r.appts {
		appts[k] = v
	}
	treatments := make(map[uuid.UUID]Treatment, len(r.treatments))
	for k, v := range r.treatments {
		treatments[k] = v
	}
	assignments := make(map[uuid.UUID]uuid.UUID, len(r.assignments))
	for k, v := range r.assignments {
		assignments[k] = v
	}
	profiles := make(map[uuid.UUID]directory.Profile, len(r.profiles))
	for k, v := range r.profiles {
		profiles[k] = v
	}
	events := len(r.events)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.appts, r.treatments, r.events = appts, treatments, r.events[:events]
		r.assignments, r.profiles = assignments, profiles
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

// ListAppointments honours the id, time and state filters. Name and search
// filters are resolved by Postgres and ignored here.
func (r *memRepo) ListAppointments(_ context.Context, f ListFilter, p Page) ([]Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Appointment
	for _, a := range r.appts {
		switch {
		case f.UserID != nil && a.UserID != *f.UserID,
			f.PsychologistID != nil && a.PsychologistID != *f.PsychologistID,
			f.BusinessID != nil && a.BusinessID != *f.BusinessID,
			f.From != nil && a.StartDate.Before(*f.From),
			f.To != nil && !a.StartDate.Before(*f.To),
			f.Cancelled != nil && a.Cancelled != *f.Cancelled,
			f.Finished != nil && a.Finished != *f.Finished:
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate) == f.Ascending
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(matched)
	if p.Offset >= total {
		return nil, total, nil
	}
	matched = matched[p.Offset:]
	if p.Limit > 0 && p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}
	return matched, total, nil
}

func (r *memRepo) MaxConsultationNumber(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := 0
	for _, a := range r.appts {
		n, err := strconv.Atoi(a.Number)
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (r *memRepo) InsertAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.collisions > 0 {
		r.collisions--
		phantom := Appointment{ID: uuid.New(), Number: a.Number, Cancelled: true}
		r.appts[phantom.ID] = phantom
		return ErrNumberTaken
	}

	for _, other := range r.appts {
		if other.Number == a.Number {
			return ErrNumberTaken
		}
		if !other.Cancelled && other.PsychologistID == a.PsychologistID && other.StartDate.Equal(a.StartDate) {
			return ErrSlotTaken
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appts[a.ID] = *a
	return nil
}

func (r *memRepo) UpdateWindow(_ context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !a.Scheduled() {
		return nil, ErrAppointmentNotFound
	}
	a.StartDate, a.EndDate, a.RemindedAt = start, end, nil
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) Cancel(_ context.Context, id uuid.UUID, by CancelledBy, at time.Time, paid bool) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !a.Scheduled() {
		return nil, ErrAppointmentNotFound
	}
	a.Cancelled, a.CancelledBy, a.CancelledDate, a.CancelledPaid = true, &by, &at, paid
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) Finish(_ context.Context, id uuid.UUID, f FinishFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !a.Scheduled() {
		return ErrAppointmentNotFound
	}
	treatmentID := f.TreatmentID
	a.Finished = true
	a.TreatmentID = &treatmentID
	a.Diagnostics = f.Diagnostics
	a.ClinicalIntervention = f.ClinicalIntervention
	a.ClinicalRecord = f.ClinicalRecord
	a.GoalsNextConsultation = f.GoalsNextConsultation
	a.NextAppointmentID = f.NextAppointmentID
	r.appts[id] = a
	return nil
}

func (r *memRepo) CountUserAppointments(_ context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.UserID == userID && !a.Cancelled && !a.StartDate.Before(from) && a.StartDate.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ListBookings(_ context.Context, from, to time.Time, psychologistIDs []uuid.UUID) ([]availability.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(psychologistIDs))
	for _, id := range psychologistIDs {
		wanted[id] = true
	}
	var out []availability.Booking
	for _, a := range r.appts {
		if a.Cancelled || !a.StartDate.Before(to) || !a.EndDate.After(from) {
			continue
		}
		if psychologistIDs != nil && !wanted[a.PsychologistID] {
			continue
		}
		out = append(out, availability.Booking{
			AppointmentID:  a.ID,
			PsychologistID: a.PsychologistID,
			Start:          a.StartDate,
			End:            a.EndDate,
		})
	}
	return out, nil
}

func (r *memRepo) ListDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Scheduled() && a.RemindedAt == nil && !a.StartDate.Before(from) && !a.StartDate.After(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *memRepo) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.RemindedAt != nil {
		return false, nil
	}
	a.RemindedAt = &at
	r.appts[id] = a
	return true, nil
}

func (r *memRepo) GetOpenTreatment(_ context.Context, userID uuid.UUID) (*Treatment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.treatments {
		if t.UserID == userID && t.ClinicalDischarge == nil {
			return &t, nil
		}
	}
	return nil, ErrTreatmentNotFound
}

func (r *memRepo) InsertTreatment(_ context.Context, t *Treatment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	r.treatments[t.ID] = *t
	return nil
}

func (r *memRepo) UpdateTreatment(_ context.Context, t *Treatment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.treatments[t.ID]; !ok {
		return ErrTreatmentNotFound
	}
	r.treatments[t.ID] = *t
	return nil
}

func (r *memRepo) AssignPsychologist(_ context.Context, userID, psychologistID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[userID] = psychologistID
	return nil
}

func (r *memRepo) UpdateUserProfile(_ context.Context, userID uuid.UUID, p directory.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.profiles[userID]
	if p.Birthdate != nil {
		current.Birthdate = p.Birthdate
	}
	if p.ExternalName != "" {
		current.ExternalName = p.ExternalName
	}
	r.profiles[userID] = current
	return nil
}

func (r *memRepo) profile(userID uuid.UUID) (directory.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	return p, ok
}

func (r *memRepo) assignment(userID uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.assignments[userID]
	return id, ok
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if !a.Cancelled {
			n++
		}
	}
	return n
}

func (r *memRepo) put(a Appointment) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appts[a.ID] = a
	return a
}

type fakeDays []availability.Day

func (f fakeDays) ListDays(_ context.Context, from, to time.Time, psychologistID *uuid.UUID) ([]availability.Day, error) {
	var out []availability.Day
	for _, d := range f {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		if psychologistID != nil && d.PsychologistID != *psychologistID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type fakeRoster []uuid.UUID

func (f fakeRoster) ActivePsychologists(context.Context) ([]uuid.UUID, error) {
	return f, nil
}

// fakeDirectory derives the business usage from the appointments in repo.
// Psychologist assignments are read back from repo, where Book writes them.
type fakeDirectory struct {
	mu          sync.Mutex
	repo        *memRepo
	business    uuid.UUID
	bought      int
	perUser     int
	businessErr error
	users       map[uuid.UUID]*directory.User
}

func (d *fakeDirectory) BusinessQuota(_ context.Context, _ uuid.UUID) (directory.Quota, error) {
	if d.businessErr != nil {
		return directory.Quota{}, d.businessErr
	}
	return directory.Quota{
		BusinessID: d.business,
		Bought:     d.bought,
		Used:       d.repo.count(),
		PerUser:    d.perUser,
	}, nil
}

func (d *fakeDirectory) GetUser(_ context.Context, userID uuid.UUID) (*directory.User, error) {
	d.mu.Lock()
	u := directory.User{ID: userID}
	if stored, ok := d.users[userID]; ok {
		u = *stored
	}
	d.mu.Unlock()

	if u.PsychologistID == nil {
		u.PsychologistID = d.assigned(userID)
	}
	return &u, nil
}

func (d *fakeDirectory) assigned(userID uuid.UUID) *uuid.UUID {
	if id, ok := d.repo.assignment(userID); ok {
		return &id
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		return u.PsychologistID
	}
	return nil
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) WithDayLock(ctx context.Context, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithDayLock(context.Context, time.Time, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var lisbon = calendar.Must("Europe/Lisbon")

func workDay(psychologistID uuid.UUID, date string, start, end int) availability.Day {
	day, err := calendar.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return availability.Day{
		ID:             uuid.New(),
		PsychologistID: psychologistID,
		Date:           day,
		Slots:          []availability.Slot{{ID: uuid.New(), Start: start, End: end}},
	}
}

package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dayKey struct {
	psychologist uuid.UUID
	date         time.Time
}

// memRepo is a map-backed Repository. WithinTx restores the previous state
// when fn fails.
type memRepo struct {
	mu   sync.Mutex
	days map[dayKey]Day
}

func newMemRepo() *memRepo {
	return &memRepo{days: make(map[dayKey]Day)}
}

func cloneDay(d Day) Day {
	d.Slots = append([]Slot(nil), d.Slots...)
	if d.Slots == nil {
		d.Slots = []Slot{}
	}
	return d
}

func (r *memRepo) ListDays(_ context.Context, from, to time.Time, psychologistID *uuid.UUID) ([]Day, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Day
	for k, d := range r.days {
		if k.date.Before(from) || k.date.After(to) {
			continue
		}
		if psychologistID != nil && *psychologistID != k.psychologist {
			continue
		}
		out = append(out, cloneDay(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].PsychologistID.String() < out[j].PsychologistID.String()
	})
	return out, nil
}

func (r *memRepo) GetDay(_ context.Context, psychologistID uuid.UUID, date time.Time) (*Day, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.days[dayKey{psychologistID, date}]
	if !ok {
		return nil, ErrDayNotFound
	}
	c := cloneDay(d)
	return &c, nil
}

func (r *memRepo) ReplaceDays(_ context.Context, psychologistID uuid.UUID, from, to time.Time, days []Day) ([]Day, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.days {
		if k.psychologist == psychologistID && !k.date.Before(from) && !k.date.After(to) {
			delete(r.days, k)
		}
	}
	out := make([]Day, 0, len(days))
	for _, d := range days {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		r.days[dayKey{d.PsychologistID, d.Date}] = cloneDay(d)
		out = append(out, cloneDay(d))
	}
	return out, nil
}

func (r *memRepo) SaveDay(_ context.Context, d *Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := dayKey{d.PsychologistID, d.Date}
	if existing, ok := r.days[k]; ok {
		d.ID = existing.ID
	} else if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.days[k] = cloneDay(*d)
	return nil
}

func (r *memRepo) DeleteDay(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, d := range r.days {
		if d.ID == id {
			delete(r.days, k)
			return nil
		}
	}
	return ErrDayNotFound
}

func (r *memRepo) ListDaysWithOrigin(_ context.Context, psychologistID, originSlotID uuid.UUID, after time.Time) ([]Day, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Day
	for k, d := range r.days {
		if k.psychologist != psychologistID || !k.date.After(after) {
			continue
		}
		for _, s := range d.Slots {
			if s.OriginatesFrom(originSlotID) {
				out = append(out, cloneDay(d))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memRepo) WithinTx(_ context.Context, fn func(Repository) error) error {
	r.mu.Lock()
	snapshot := make(map[dayKey]Day, len(r.days))
	for k, d := range r.days {
		snapshot[k] = cloneDay(d)
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.days = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) day(psychologistID uuid.UUID, date time.Time) (Day, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.days[dayKey{psychologistID, date}]
	return d, ok
}

type fakeBookings []Booking

func (f fakeBookings) ListBookings(_ context.Context, from, to time.Time, psychologistIDs []uuid.UUID) ([]Booking, error) {
	want := make(map[uuid.UUID]bool, len(psychologistIDs))
	for _, id := range psychologistIDs {
		want[id] = true
	}
	var out []Booking
	for _, b := range f {
		if want[b.PsychologistID] && b.Start.Before(to) && b.End.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeRoster []uuid.UUID

func (f fakeRoster) ActivePsychologists(context.Context) ([]uuid.UUID, error) {
	return f, nil
}

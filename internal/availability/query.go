package availability

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

// gridMarkers returns the start minute of every whole grid cell in the slot.
func gridMarkers(s Slot) []int {
	n := (s.End - s.Start) / GridMinutes
	out := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, s.Start+i*GridMinutes)
	}
	return out
}

// span is a blocked minute range [from, to) on one day.
type span struct{ from, to int }

func (b span) blocks(m int) bool {
	return m >= b.from && m < b.to
}

// occupied converts bookings into blocked spans for day. Each span starts
// OccupiedLead minutes before the appointment and runs to its end.
func (s *Service) occupied(day time.Time, bookings []Booking) []span {
	dayStart, dayEnd := s.cal.DayBounds(day)
	out := make([]span, 0, len(bookings))
	for _, b := range bookings {
		if !b.Start.Before(dayEnd) || !b.End.After(dayStart) {
			continue
		}
		out = append(out, span{
			from: s.cal.MinuteOf(day, b.Start) - OccupiedLead,
			to:   s.cal.MinuteOf(day, b.End),
		})
	}
	return out
}

// FindSlots lists, per day of the query range, the HH:mm grid markers still
// bookable with at least one active psychologist. Days whose records all
// belong to inactive psychologists are omitted.
func (s *Service) FindSlots(ctx context.Context, q SlotQuery) ([]DaySlots, error) {
	started := time.Now()
	defer func() { s.metrics.SlotSearch(time.Since(started)) }()

	from, to := calendar.Day(q.From), calendar.Day(q.To)
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	now := s.now()
	today := s.cal.Today(now)
	if from.Day() == 1 && from.Year() == today.Year() && from.Month() == today.Month() && from.Before(today) {
		from = today
	}
	if to.Before(from) {
		return []DaySlots{}, nil
	}

	records, err := s.repo.ListDays(ctx, from, to, q.PsychologistID)
	if err != nil {
		return nil, err
	}

	activeIDs, err := s.roster.ActivePsychologists(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	byDate := make(map[time.Time][]Day)
	var dates []time.Time
	var psychologists []uuid.UUID
	seenPsy := make(map[uuid.UUID]bool)
	for _, d := range records {
		if !active[d.PsychologistID] {
			continue
		}
		date := calendar.Day(d.Date)
		if _, ok := byDate[date]; !ok {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], d)
		if !seenPsy[d.PsychologistID] {
			seenPsy[d.PsychologistID] = true
			psychologists = append(psychologists, d.PsychologistID)
		}
	}
	if len(dates) == 0 {
		return []DaySlots{}, nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	rangeStart, _ := s.cal.DayBounds(from)
	_, rangeEnd := s.cal.DayBounds(to)
	bookings, err := s.bookings.ListBookings(ctx, rangeStart, rangeEnd, psychologists)
	if err != nil {
		return nil, err
	}
	bookingsOf := make(map[uuid.UUID][]Booking)
	for _, b := range bookings {
		bookingsOf[b.PsychologistID] = append(bookingsOf[b.PsychologistID], b)
	}

	cutoff := -1
	if !today.Before(from) && !today.After(to) {
		cutoff = s.cal.MinuteOf(today, now.Add(SelfBookingLead))
	}

	out := make([]DaySlots, 0, len(dates))
	for _, date := range dates {
		markers := make(map[int]struct{})
		for _, rec := range byDate[date] {
			blocked := s.occupied(date, bookingsOf[rec.PsychologistID])
			for _, slot := range rec.Slots {
				for _, m := range gridMarkers(slot) {
					if date.Equal(today) && m < cutoff {
						continue
					}
					if isBlocked(m, blocked) {
						continue
					}
					markers[m] = struct{}{}
				}
			}
		}
		out = append(out, DaySlots{Date: calendar.FormatDate(date), Slots: formatMarkers(markers)})
	}
	return out, nil
}

func isBlocked(m int, spans []span) bool {
	for _, b := range spans {
		if b.blocks(m) {
			return true
		}
	}
	return false
}

func formatMarkers(set map[int]struct{}) []string {
	minutes := make([]int, 0, len(set))
	for m := range set {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	out := make([]string, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, calendar.FormatMinute(m))
	}
	return out
}

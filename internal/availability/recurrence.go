package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

const recurrenceStepDays = 7

// overlay places rec on top of existing. Slots outside rec are kept as they
// are, slots rec overlaps are cut down to what lies outside it. A slot rec sits
// strictly inside yields two fragments: the left one keeps the slot id, the
// right one gets a new id. Fragments keep the recurring metadata of the slot
// they were cut from. The result is ordered by start.
func overlay(existing []Slot, rec Slot) []Slot {
	out := make([]Slot, 0, len(existing)+2)
	for _, e := range existing {
		if e.End <= rec.Start || e.Start >= rec.End {
			out = append(out, e)
			continue
		}

		kept := false
		if e.Start < rec.Start {
			left := e
			left.End = rec.Start
			out = append(out, left)
			kept = true
		}
		if e.End > rec.End {
			right := e
			right.Start = rec.End
			if kept {
				right.ID = uuid.New()
			}
			out = append(out, right)
		}
	}
	out = append(out, rec)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// withoutOrigin drops every slot projected from originID.
func withoutOrigin(slots []Slot, originID uuid.UUID) ([]Slot, bool) {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.OriginatesFrom(originID) {
			continue
		}
		out = append(out, s)
	}
	return out, len(out) != len(slots)
}

// CreateRecurring projects an existing slot weekly from the week after its day
// through RecurringEnd inclusive, then marks the slot itself as recurring.
// All day records are written in one transaction.
func (s *Service) CreateRecurring(ctx context.Context, psychologistID uuid.UUID, in RecurringSlot) error {
	if in.OriginSlotID == uuid.Nil || in.Date.IsZero() || in.RecurringEnd.IsZero() {
		return fmt.Errorf("%w: id, date and recurringEnd are required", apperr.ErrMissingFields)
	}

	date := calendar.Day(in.Date)
	until := calendar.Day(in.RecurringEnd)
	if until.Before(date) {
		return fmt.Errorf("%w: recurringEnd %s is before %s",
			apperr.ErrInvalidInput, calendar.FormatDate(until), calendar.FormatDate(date))
	}

	window := Slot{Start: in.Start, End: in.End}
	if err := window.validate(); err != nil {
		return err
	}

	originID := in.OriginSlotID
	projected := 0

	err := s.repo.WithinTx(ctx, func(repo Repository) error {
		origin, err := repo.GetDay(ctx, psychologistID, date)
		if err != nil {
			return fmt.Errorf("load origin day: %w", err)
		}
		idx := origin.slotIndex(originID)
		if idx < 0 {
			return ErrSlotNotFound
		}

		var stepErr error
		calendar.EachDay(date.AddDate(0, 0, recurrenceStepDays), until, recurrenceStepDays, func(target time.Time) {
			if stepErr != nil {
				return
			}
			stepErr = s.projectOnto(ctx, repo, psychologistID, target, window, until, originID)
			projected++
		})
		if stepErr != nil {
			return stepErr
		}

		origin.Slots[idx].Recurring = true
		origin.Slots[idx].RecurringEnd = &until
		origin.Slots[idx].RecurringOriginSlot = &originID
		if err := repo.SaveDay(ctx, origin); err != nil {
			return fmt.Errorf("mark origin slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("psychologist_id", psychologistID.String()).
		Str("origin_slot_id", originID.String()).
		Str("until", calendar.FormatDate(until)).
		Int("days", projected).
		Msg("recurring slot projected")
	return nil
}

func (s *Service) projectOnto(ctx context.Context, repo Repository, psychologistID uuid.UUID, target time.Time, window Slot, until time.Time, originID uuid.UUID) error {
	end := until
	origin := originID
	rec := Slot{
		ID:                  uuid.New(),
		Start:               window.Start,
		End:                 window.End,
		Recurring:           true,
		RecurringEnd:        &end,
		RecurringOriginSlot: &origin,
	}

	day, err := repo.GetDay(ctx, psychologistID, target)
	switch {
	case errors.Is(err, ErrDayNotFound):
		day = &Day{PsychologistID: psychologistID, Date: target, Slots: []Slot{rec}}
	case err != nil:
		return fmt.Errorf("load day %s: %w", calendar.FormatDate(target), err)
	default:
		day.Slots = overlay(day.Slots, rec)
	}

	if err := repo.SaveDay(ctx, day); err != nil {
		return fmt.Errorf("save day %s: %w", calendar.FormatDate(target), err)
	}
	return nil
}

// DeleteRecurring removes the slots projected from slotID on every day after
// from. Days left without slots are deleted. The origin slot is untouched.
// It returns the number of day records changed.
func (s *Service) DeleteRecurring(ctx context.Context, psychologistID, slotID uuid.UUID, from time.Time) (int, error) {
	if slotID == uuid.Nil || from.IsZero() {
		return 0, fmt.Errorf("%w: slot id and date are required", apperr.ErrMissingFields)
	}
	from = calendar.Day(from)

	changed := 0
	err := s.repo.WithinTx(ctx, func(repo Repository) error {
		days, err := repo.ListDaysWithOrigin(ctx, psychologistID, slotID, from)
		if err != nil {
			return err
		}

		for i := range days {
			day := days[i]
			slots, pulled := withoutOrigin(day.Slots, slotID)
			if !pulled {
				continue
			}

			if len(slots) == 0 {
				if err := repo.DeleteDay(ctx, day.ID); err != nil {
					return fmt.Errorf("delete day %s: %w", calendar.FormatDate(day.Date), err)
				}
			} else {
				day.Slots = slots
				if err := repo.SaveDay(ctx, &day); err != nil {
					return fmt.Errorf("save day %s: %w", calendar.FormatDate(day.Date), err)
				}
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("psychologist_id", psychologistID.String()).
		Str("origin_slot_id", slotID.String()).
		Int("days", changed).
		Msg("recurring slot removed")
	return changed, nil
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

// searchScope decides whose schedule the actor may search. Psychologists see
// their own, users with an assigned psychologist see only that one, everyone
// else gets the optional filter.
func searchScope(ctx context.Context, users UserLookup, actor auth.Actor, filter *uuid.UUID) (*uuid.UUID, error) {
	switch a := actor.(type) {
	case auth.Psychologist:
		id := a.ID
		return &id, nil
	case auth.User:
		u, err := users.GetUser(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if u.PsychologistID != nil {
			return u.PsychologistID, nil
		}
	}
	return filter, nil
}

func searchSlotsHandler(svc AvailabilityService, users UserLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		var req SearchSlotsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		from, err := calendar.ParseDate(req.StartDate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		to, err := calendar.ParseDate(req.EndDate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var filter *uuid.UUID
		if req.PsychologistID != "" {
			id, err := uuid.Parse(req.PsychologistID)
			if err != nil {
				writeServiceError(w, r, fmt.Errorf("%w: psychologistId must be a valid UUID", apperr.ErrInvalidInput))
				return
			}
			filter = &id
		}

		scope, err := searchScope(r.Context(), users, actor, filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		slots, err := svc.FindSlots(r.Context(), availability.SlotQuery{From: from, To: to, PsychologistID: scope})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func dateRange(r *http.Request) (uuid.UUID, availability.SlotQuery, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return uuid.Nil, availability.SlotQuery{}, err
	}
	from, err := calendar.ParseDate(chi.URLParam(r, "startDate"))
	if err != nil {
		return uuid.Nil, availability.SlotQuery{}, err
	}
	to, err := calendar.ParseDate(chi.URLParam(r, "endDate"))
	if err != nil {
		return uuid.Nil, availability.SlotQuery{}, err
	}
	return id, availability.SlotQuery{From: from, To: to}, nil
}

func getAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, rng, err := dateRange(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		days, err := svc.GetDays(r.Context(), id, rng.From, rng.To)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayPayloads(days))
	}
}

func saveAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, rng, err := dateRange(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req SaveAvailabilityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
		days, err := fromDayPayloads(id, req.Days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		saved, err := svc.SaveDays(r.Context(), id, rng.From, rng.To, days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayPayloads(saved))
	}
}

func createRecurringHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req RecurringSlotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		slotID, err := uuid.Parse(req.ID)
		if err != nil {
			writeServiceError(w, r, fmt.Errorf("%w: id must be a valid UUID", apperr.ErrInvalidInput))
			return
		}
		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		until, err := calendar.ParseDate(req.RecurringEnd)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		err = svc.CreateRecurring(r.Context(), id, availability.RecurringSlot{
			OriginSlotID: slotID,
			Date:         date,
			Start:        req.Start,
			End:          req.End,
			RecurringEnd: until,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteRecurringHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		slotID, err := uuidParam(r, "slotId")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		from, err := calendar.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		changed, err := svc.DeleteRecurring(r.Context(), id, slotID, from)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteRecurringResponse{DaysChanged: changed})
	}
}

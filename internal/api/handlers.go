package api

import (
	"net/http"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
)

// Handlers below run behind Authenticate and RequireRole, so the actor type
// assertions cannot fail for routed requests.

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := actorAs[auth.User](r)

		var req BookAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), user.ID, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getReportHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologist, _ := actorAs[auth.Psychologist](r)

		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		report, err := svc.GetReport(r.Context(), id, psychologist.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toReportResponse(report))
	}
}

func submitReportHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		psychologist, _ := actorAs[auth.Psychologist](r)

		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req SubmitReportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		next, err := svc.SubmitReport(r.Context(), id, psychologist.ID, req.input())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var resp SubmitReportResponse
		if next != nil {
			n := toAppointmentResponse(next)
			resp.NextAppointment = &n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := actorAs[auth.User](r)

		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req BookAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, user.ID, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func searchAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		var req SearchAppointmentsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		filter, page := req.query()
		result, err := svc.ListAppointments(r.Context(), actor, filter, page)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentPageResponse{
			Appointments: toAppointmentResponses(result.Appointments),
			Total:        result.Total,
		})
	}
}

func agendaHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		agenda, err := svc.Agenda(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AgendaResponse{
			NextAppointments: toAppointmentResponses(agenda.Next),
			PendingReport:    toAppointmentResponses(agenda.PendingReport),
		})
	}
}

func pastAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, rng, err := dateRange(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		past, err := svc.PastAppointments(r.Context(), id, rng.From, rng.To)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(past))
	}
}

func actorAs[T auth.Actor](r *http.Request) (T, bool) {
	actor, _ := auth.FromContext(r.Context())
	v, ok := actor.(T)
	return v, ok
}

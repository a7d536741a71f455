package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
)

type SearchSlotsRequest struct {
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	PsychologistID string `json:"psychologistId,omitempty"`
}

type BookAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type SubmitReportRequest struct {
	Diagnostics           []uuid.UUID `json:"diagnostics"`
	Medication            bool        `json:"medication"`
	MedicationDescription string      `json:"medicationDescription"`
	Goals                 string      `json:"goals"`
	Anamnesis             string      `json:"anamnesis"`
	ClinicalDischarge     bool        `json:"clinicalDischarge"`
	ClinicalIntervention  string      `json:"clinicalIntervention"`
	ClinicalRecord        string      `json:"clinicalRecord"`
	GoalsNextConsultation string      `json:"goalsNextConsultation"`
	Birthdate             string      `json:"birthdate,omitempty"`
	ExternalName          string      `json:"externalName,omitempty"`
	NextDate              string      `json:"nextDate,omitempty"`
	NextTime              string      `json:"nextTime,omitempty"`
}

func (req SubmitReportRequest) input() appointment.ReportInput {
	return appointment.ReportInput{
		Diagnostics:           req.Diagnostics,
		Medication:            req.Medication,
		MedicationDescription: req.MedicationDescription,
		Goals:                 req.Goals,
		Anamnesis:             req.Anamnesis,
		ClinicalDischarge:     req.ClinicalDischarge,
		ClinicalIntervention:  req.ClinicalIntervention,
		ClinicalRecord:        req.ClinicalRecord,
		GoalsNextConsultation: req.GoalsNextConsultation,
		Birthdate:             req.Birthdate,
		ExternalName:          req.ExternalName,
		NextDate:              req.NextDate,
		NextTime:              req.NextTime,
	}
}

// SearchAppointmentsRequest pages through appointments. Page is zero based.
type SearchAppointmentsRequest struct {
	Search           string     `json:"search,omitempty"`
	UserName         string     `json:"userName,omitempty"`
	PsychologistName string     `json:"psychologistName,omitempty"`
	ClientName       string     `json:"clientName,omitempty"`
	UserID           *uuid.UUID `json:"user,omitempty"`
	PsychologistID   *uuid.UUID `json:"psychologist,omitempty"`
	BusinessID       *uuid.UUID `json:"business,omitempty"`
	From             *time.Time `json:"from,omitempty"`
	To               *time.Time `json:"to,omitempty"`
	Cancelled        *bool      `json:"cancelled,omitempty"`
	Finished         *bool      `json:"finished,omitempty"`
	Page             int        `json:"page"`
	PerPage          int        `json:"perPage"`
}

func (req SearchAppointmentsRequest) query() (appointment.ListFilter, appointment.Page) {
	f := appointment.ListFilter{
		UserID:           req.UserID,
		PsychologistID:   req.PsychologistID,
		BusinessID:       req.BusinessID,
		From:             req.From,
		To:               req.To,
		Cancelled:        req.Cancelled,
		Finished:         req.Finished,
		Search:           req.Search,
		UserName:         req.UserName,
		PsychologistName: req.PsychologistName,
		BusinessName:     req.ClientName,
	}

	perPage := req.PerPage
	switch {
	case perPage == 0:
		perPage = appointment.DefaultPageSize
	case perPage > appointment.MaxPageSize:
		perPage = appointment.MaxPageSize
	}
	return f, appointment.Page{Limit: perPage, Offset: req.Page * perPage}
}

type SlotPayload struct {
	ID                  *uuid.UUID `json:"id,omitempty"`
	Start               int        `json:"start"`
	End                 int        `json:"end"`
	Recurring           bool       `json:"recurring,omitempty"`
	RecurringEnd        *time.Time `json:"recurringEnd,omitempty"`
	RecurringOriginSlot *uuid.UUID `json:"recurringOriginSlot,omitempty"`
}

type DayPayload struct {
	ID    uuid.UUID     `json:"id,omitempty"`
	Date  string        `json:"date"`
	Slots []SlotPayload `json:"slots"`
}

type SaveAvailabilityRequest struct {
	Days []DayPayload `json:"days"`
}

type RecurringSlotRequest struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	RecurringEnd string `json:"recurringEnd"`
}

type DeleteRecurringResponse struct {
	DaysChanged int `json:"daysChanged"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ConsultationNumber string     `json:"consultationNumber"`
	UserID             uuid.UUID  `json:"userId"`
	PsychologistID     uuid.UUID  `json:"psychologistId"`
	BusinessID         uuid.UUID  `json:"businessId"`
	TreatmentID        *uuid.UUID `json:"treatmentId,omitempty"`
	StartDate          time.Time  `json:"startDate"`
	EndDate            time.Time  `json:"endDate"`
	Duration           int        `json:"duration"`
	Cancelled          bool       `json:"cancelled"`
	CancelledBy        string     `json:"cancelledBy,omitempty"`
	CancelledDate      *time.Time `json:"cancelledDate,omitempty"`
	CancelledPaid      bool       `json:"cancelledPaid"`
	Finished           bool       `json:"finished"`
	NextAppointmentID  *uuid.UUID `json:"nextAppointmentId,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		ConsultationNumber: a.Number,
		UserID:             a.UserID,
		PsychologistID:     a.PsychologistID,
		BusinessID:         a.BusinessID,
		TreatmentID:        a.TreatmentID,
		StartDate:          a.StartDate,
		EndDate:            a.EndDate,
		Duration:           a.Duration,
		Cancelled:          a.Cancelled,
		CancelledDate:      a.CancelledDate,
		CancelledPaid:      a.CancelledPaid,
		Finished:           a.Finished,
		NextAppointmentID:  a.NextAppointmentID,
	}
	if a.CancelledBy != nil {
		resp.CancelledBy = string(*a.CancelledBy)
	}
	return resp
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return out
}

type AppointmentPageResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
}

type AgendaResponse struct {
	NextAppointments []AppointmentResponse `json:"nextAppointments"`
	PendingReport    []AppointmentResponse `json:"pendingReport"`
}

type TreatmentResponse struct {
	ID                    uuid.UUID   `json:"id"`
	Diagnostics           []uuid.UUID `json:"diagnostics"`
	StartDate             time.Time   `json:"startDate"`
	Medication            bool        `json:"medication"`
	MedicationDescription string      `json:"medicationDescription,omitempty"`
	Goals                 string      `json:"goals"`
	Anamnesis             string      `json:"anamnesis"`
}

type ReportResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Treatment   *TreatmentResponse  `json:"treatment"`
}

func toReportResponse(r *appointment.Report) ReportResponse {
	resp := ReportResponse{Appointment: toAppointmentResponse(&r.Appointment)}
	if t := r.Treatment; t != nil {
		resp.Treatment = &TreatmentResponse{
			ID:                    t.ID,
			Diagnostics:           t.Diagnostics,
			StartDate:             t.StartDate,
			Medication:            t.Medication,
			MedicationDescription: t.MedicationDescription,
			Goals:                 t.Goals,
			Anamnesis:             t.Anamnesis,
		}
	}
	return resp
}

type SubmitReportResponse struct {
	NextAppointment *AppointmentResponse `json:"nextAppointment,omitempty"`
}

func toDayPayloads(days []availability.Day) []DayPayload {
	out := make([]DayPayload, 0, len(days))
	for _, d := range days {
		slots := make([]SlotPayload, 0, len(d.Slots))
		for _, s := range d.Slots {
			id := s.ID
			slots = append(slots, SlotPayload{
				ID:                  &id,
				Start:               s.Start,
				End:                 s.End,
				Recurring:           s.Recurring,
				RecurringEnd:        s.RecurringEnd,
				RecurringOriginSlot: s.RecurringOriginSlot,
			})
		}
		out = append(out, DayPayload{ID: d.ID, Date: calendar.FormatDate(d.Date), Slots: slots})
	}
	return out
}

func fromDayPayloads(psychologistID uuid.UUID, payload []DayPayload) ([]availability.Day, error) {
	if payload == nil {
		return nil, nil
	}
	days := make([]availability.Day, 0, len(payload))
	for _, p := range payload {
		date, err := calendar.ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		slots := make([]availability.Slot, 0, len(p.Slots))
		for _, s := range p.Slots {
			slot := availability.Slot{
				Start:               s.Start,
				End:                 s.End,
				Recurring:           s.Recurring,
				RecurringEnd:        s.RecurringEnd,
				RecurringOriginSlot: s.RecurringOriginSlot,
			}
			if s.ID != nil {
				slot.ID = *s.ID
			}
			slots = append(slots, slot)
		}
		days = append(days, availability.Day{PsychologistID: psychologistID, Date: date, Slots: slots})
	}
	return days, nil
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

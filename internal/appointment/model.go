package appointment

import (
	"time"

	"github.com/google/uuid"
)

type CancelledBy string

const (
	CancelledByUser         CancelledBy = "user"
	CancelledByPsychologist CancelledBy = "psychologist"
	CancelledByTeam         CancelledBy = "team"
)

// Appointment is one consultation. StartDate and EndDate are UTC instants.
type Appointment struct {
	ID             uuid.UUID
	Number         string
	UserID         uuid.UUID
	PsychologistID uuid.UUID
	BusinessID     uuid.UUID
	TreatmentID    *uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	Duration       int

	Cancelled     bool
	CancelledBy   *CancelledBy
	CancelledDate *time.Time
	CancelledPaid bool

	Finished              bool
	NextAppointmentID     *uuid.UUID
	Diagnostics           []uuid.UUID
	ClinicalIntervention  string
	ClinicalRecord        string
	GoalsNextConsultation string

	RemindedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Scheduled reports whether the appointment is neither cancelled nor finished.
func (a Appointment) Scheduled() bool {
	return !a.Cancelled && !a.Finished
}

// Treatment is a user's course of care. At most one per user is open
// (ClinicalDischarge nil) at a time.
type Treatment struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	Diagnostics           []uuid.UUID
	StartDate             time.Time
	Medication            bool
	MedicationDescription string
	Goals                 string
	Anamnesis             string
	ClinicalDischarge     *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReportInput is what a psychologist submits to close a consultation.
// NextDate and NextTime, when both set, book a follow-up with the same
// psychologist.
type ReportInput struct {
	Diagnostics           []uuid.UUID
	Medication            bool
	MedicationDescription string
	Goals                 string
	Anamnesis             string
	ClinicalDischarge     bool

	ClinicalIntervention  string
	ClinicalRecord        string
	GoalsNextConsultation string

	// Birthdate (YYYY-MM-DD) and ExternalName correct the user's profile
	// when set.
	Birthdate    string
	ExternalName string

	NextDate string
	NextTime string
}

// FinishFields are written onto an appointment when its report is submitted.
type FinishFields struct {
	TreatmentID           uuid.UUID
	Diagnostics           []uuid.UUID
	ClinicalIntervention  string
	ClinicalRecord        string
	GoalsNextConsultation string
	NextAppointmentID     *uuid.UUID
}

// Report is an open appointment together with the user's open treatment.
type Report struct {
	Appointment Appointment
	Treatment   *Treatment
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows ListAppointments. Nil and empty fields match everything.
type ListFilter struct {
	UserID         *uuid.UUID
	PsychologistID *uuid.UUID
	BusinessID     *uuid.UUID

	// StartDate in [From, To).
	From *time.Time
	To   *time.Time

	Cancelled *bool
	Finished  *bool

	// Search matches the user's email, the psychologist's name or the
	// business name. The name filters match their own field only. All are
	// case-insensitive substring matches.
	Search           string
	UserName         string
	PsychologistName string
	BusinessName     string

	// Ascending sorts by StartDate ascending instead of newest first.
	Ascending bool
}

// Page selects a window of a listing. Limit 0 returns everything from Offset.
type Page struct {
	Limit  int
	Offset int
}

type AppointmentPage struct {
	Appointments []Appointment
	Total        int
}

// Agenda is a psychologist's view of their consultations: upcoming ones and
// past ones still waiting for a report.
type Agenda struct {
	Next          []Appointment
	PendingReport []Appointment
}

package notify

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBooked      EventType = "appointment.booked"
	EventRescheduled EventType = "appointment.rescheduled"
	EventCancelled   EventType = "appointment.cancelled"
	EventFinished    EventType = "appointment.finished"
	EventReminder    EventType = "appointment.reminder"
)

// Event is published after an appointment transition has been committed.
type Event struct {
	Type           EventType  `json:"type"`
	AppointmentID  uuid.UUID  `json:"appointmentId"`
	Number         string     `json:"consultationNumber"`
	UserID         uuid.UUID  `json:"userId"`
	PsychologistID uuid.UUID  `json:"psychologistId"`
	Start          time.Time  `json:"startDate"`
	PreviousStart  *time.Time `json:"previousStartDate,omitempty"`
	CancelledBy    string     `json:"cancelledBy,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
)

type AppointmentService interface {
	Book(ctx context.Context, userID uuid.UUID, date, clock string) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetReport(ctx context.Context, id, psychologistID uuid.UUID) (*appointment.Report, error)
	SubmitReport(ctx context.Context, id, psychologistID uuid.UUID, in appointment.ReportInput) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id, userID uuid.UUID, date, clock string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor auth.Actor) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, actor auth.Actor, f appointment.ListFilter, p appointment.Page) (*appointment.AppointmentPage, error)
	Agenda(ctx context.Context, psychologistID uuid.UUID) (*appointment.Agenda, error)
	PastAppointments(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
}

type AvailabilityService interface {
	FindSlots(ctx context.Context, q availability.SlotQuery) ([]availability.DaySlots, error)
	GetDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]availability.Day, error)
	SaveDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, days []availability.Day) ([]availability.Day, error)
	CreateRecurring(ctx context.Context, psychologistID uuid.UUID, in availability.RecurringSlot) error
	DeleteRecurring(ctx context.Context, psychologistID, slotID uuid.UUID, from time.Time) (int, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*directory.User, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	Availability AvailabilityService
	Users        UserLookup
	Verifier     *auth.Verifier

	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
	Limiter  *RateLimiter
	Logger   zerolog.Logger

	PostgresCheck Check
	RedisCheck    Check
	Env           string
	Version       string
}

const (
	roleUser         = "user"
	rolePsychologist = "psychologist"
	roleStaff        = "staff"
)

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))

		r.With(RequireRole(roleUser, rolePsychologist, roleStaff)).
			Post("/slots/search", searchSlotsHandler(cfg.Availability, cfg.Users))

		// Appointment endpoints
		r.Route("/appointments", func(r chi.Router) {
			r.With(RequireRole(roleUser), cfg.Limiter.Middleware).
				Post("/", bookAppointmentHandler(cfg.Appointments))
			r.With(RequireRole(roleUser, rolePsychologist, roleStaff)).
				Post("/search", searchAppointmentsHandler(cfg.Appointments))
			r.With(RequireRole(roleStaff)).
				Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.With(RequireRole(rolePsychologist)).
				Get("/{id}/report", getReportHandler(cfg.Appointments))
			r.With(RequireRole(rolePsychologist)).
				Post("/{id}/report", submitReportHandler(cfg.Appointments))
			r.With(RequireRole(roleUser), cfg.Limiter.Middleware).
				Patch("/{id}/reschedule", rescheduleHandler(cfg.Appointments))
			r.With(RequireRole(roleUser, rolePsychologist, roleStaff)).
				Patch("/{id}/cancel", cancelHandler(cfg.Appointments))
		})

		r.Route("/psychologists/{id}/appointments", func(r chi.Router) {
			r.Use(RequireOwnPsychologist)
			r.Get("/", agendaHandler(cfg.Appointments))
			r.Get("/past/{startDate}/{endDate}", pastAppointmentsHandler(cfg.Appointments))
		})

		// Availability endpoints
		r.Route("/psychologists/{id}/availability", func(r chi.Router) {
			r.Use(RequireOwnPsychologist)
			r.Get("/{startDate}/{endDate}", getAvailabilityHandler(cfg.Availability))
			r.Put("/{startDate}/{endDate}", saveAvailabilityHandler(cfg.Availability))
			r.Patch("/recurring", createRecurringHandler(cfg.Availability))
			r.Delete("/recurring/{slotId}/date/{date}", deleteRecurringHandler(cfg.Availability))
		})
	})

	return r
}

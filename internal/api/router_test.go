package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
)

const testSecret = "test-secret"

type fakeAppointments struct {
	err         error
	bookedBy    uuid.UUID
	cancelBy    auth.Actor
	reportBy    uuid.UUID
	reportIn    appointment.ReportInput
	rescheduled string

	listedBy   auth.Actor
	listFilter appointment.ListFilter
	listPage   appointment.Page
	agendaOf   uuid.UUID
	pastRange  [2]time.Time
}

func (f *fakeAppointments) appt() *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		Number:    "000042",
		StartDate: time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 6, 12, 9, 45, 0, 0, time.UTC),
		Duration:  45,
	}
}

func (f *fakeAppointments) Book(_ context.Context, userID uuid.UUID, _, _ string) (*appointment.Appointment, error) {
	f.bookedBy = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(), nil
}

func (f *fakeAppointments) Get(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(), nil
}

func (f *fakeAppointments) GetReport(_ context.Context, _, psychologistID uuid.UUID) (*appointment.Report, error) {
	f.reportBy = psychologistID
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.Report{Appointment: *f.appt()}, nil
}

func (f *fakeAppointments) SubmitReport(_ context.Context, _, psychologistID uuid.UUID, in appointment.ReportInput) (*appointment.Appointment, error) {
	f.reportBy, f.reportIn = psychologistID, in
	if f.err != nil {
		return nil, f.err
	}
	if in.NextDate != "" {
		return f.appt(), nil
	}
	return nil, nil
}

func (f *fakeAppointments) Reschedule(_ context.Context, _, _ uuid.UUID, date, clock string) (*appointment.Appointment, error) {
	f.rescheduled = date + " " + clock
	if f.err != nil {
		return nil, f.err
	}
	return f.appt(), nil
}

func (f *fakeAppointments) Cancel(_ context.Context, _ uuid.UUID, actor auth.Actor) (*appointment.Appointment, error) {
	f.cancelBy = actor
	if f.err != nil {
		return nil, f.err
	}
	a := f.appt()
	a.Cancelled = true
	return a, nil
}

type fakeAvailability struct {
	query    availability.SlotQuery
	saved    []availability.Day
	recurred availability.RecurringSlot
}

func (f *fakeAvailability) FindSlots(_ context.Context, q availability.SlotQuery) ([]availability.DaySlots, error) {
	f.query = q
	return []availability.DaySlots{{Date: "2024-06-12", Slots: []string{"09:00", "09:30"}}}, nil
}

func (f *fakeAvailability) GetDays(context.Context, uuid.UUID, time.Time, time.Time) ([]availability.Day, error) {
	return []availability.Day{}, nil
}

func (f *fakeAvailability) SaveDays(_ context.Context, _ uuid.UUID, _, _ time.Time, days []availability.Day) ([]availability.Day, error) {
	f.saved = days
	return days, nil
}

func (f *fakeAvailability) CreateRecurring(_ context.Context, _ uuid.UUID, in availability.RecurringSlot) error {
	f.recurred = in
	return nil
}

func (f *fakeAvailability) DeleteRecurring(context.Context, uuid.UUID, uuid.UUID, time.Time) (int, error) {
	return 3, nil
}

func (f *fakeAppointments) ListAppointments(_ context.Context, actor auth.Actor, filter appointment.ListFilter, page appointment.Page) (*appointment.AppointmentPage, error) {
	f.listedBy, f.listFilter, f.listPage = actor, filter, page
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.AppointmentPage{Appointments: []appointment.Appointment{*f.appt()}, Total: 31}, nil
}

func (f *fakeAppointments) Agenda(_ context.Context, psychologistID uuid.UUID) (*appointment.Agenda, error) {
	f.agendaOf = psychologistID
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.Agenda{Next: []appointment.Appointment{*f.appt(), *f.appt()}}, nil
}

func (f *fakeAppointments) PastAppointments(_ context.Context, _ uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	f.pastRange = [2]time.Time{from, to}
	if f.err != nil {
		return nil, f.err
	}
	return []appointment.Appointment{*f.appt()}, nil
}

type fakeUsers map[uuid.UUID]*directory.User

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return &directory.User{ID: id}, nil
}

type testServer struct {
	handler  http.Handler
	appts    *fakeAppointments
	avail    *fakeAvailability
	users    fakeUsers
	verifier *auth.Verifier
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	s := &testServer{
		appts:    &fakeAppointments{},
		avail:    &fakeAvailability{},
		users:    fakeUsers{},
		verifier: auth.NewVerifier(testSecret),
		registry: prometheus.NewRegistry(),
	}
	s.handler = NewRouter(RouterConfig{
		Appointments:  s.appts,
		Availability:  s.avail,
		Users:         s.users,
		Verifier:      s.verifier,
		Metrics:       metrics.New(s.registry),
		Gatherer:      s.registry,
		Limiter:       limiter,
		Logger:        zerolog.Nop(),
		PostgresCheck: func(context.Context) error { return nil },
		RedisCheck:    func(context.Context) error { return errors.New("down") },
		Env:           "test",
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, id uuid.UUID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		token, err := s.verifier.Issue(id, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health/live", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health/ready", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var ready ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, ready.Dependencies)
}

func TestRequiresBearerToken(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/appointments", uuid.Nil, "", BookAppointmentRequest{Date: "2024-06-12", Time: "10:00"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBookAppointment(t *testing.T) {
	s := newTestServer(t, nil)
	userID := uuid.New()

	rec := s.do(t, http.MethodPost, "/appointments", userID, auth.RoleUser, BookAppointmentRequest{Date: "2024-06-12", Time: "10:00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, userID, s.appts.bookedBy)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "000042", resp.ConsultationNumber)
	assert.Equal(t, 45, resp.Duration)

	rec = s.do(t, http.MethodPost, "/appointments", uuid.New(), auth.RolePsychologist, BookAppointmentRequest{Date: "2024-06-12", Time: "10:00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota", appointment.ErrBusinessQuotaExceeded, http.StatusForbidden, "quota_exceeded"},
		{"no capacity", appointment.ErrNoPsychologistAvailable, http.StatusConflict, "no_capacity"},
		{"slot conflict", appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_conflict"},
		{"missing fields", appointment.ErrTreatmentIntake, http.StatusBadRequest, "missing_fields"},
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.appts.err = tt.err

			rec := s.do(t, http.MethodPost, "/appointments", uuid.New(), auth.RoleUser, BookAppointmentRequest{Date: "2024-06-12", Time: "10:00"})
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, resp.Details, "connection reset")
			}
		})
	}
}

func TestBadJSONBody(t *testing.T) {
	s := newTestServer(t, nil)
	token, err := s.verifier.Issue(uuid.New(), auth.RoleUser, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_parameter", decodeError(t, rec).Error)
}

func TestSearchSlotsScope(t *testing.T) {
	filter := uuid.New()
	assigned := uuid.New()
	assignedUser := uuid.New()
	psychologist := uuid.New()

	tests := []struct {
		name string
		id   uuid.UUID
		role string
		want *uuid.UUID
	}{
		{"psychologist sees own schedule", psychologist, auth.RolePsychologist, &psychologist},
		{"assigned user sees their psychologist", assignedUser, auth.RoleUser, &assigned},
		{"unassigned user uses the filter", uuid.New(), auth.RoleUser, &filter},
		{"staff uses the filter", uuid.New(), auth.RoleAdmin, &filter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.users[assignedUser] = &directory.User{ID: assignedUser, PsychologistID: &assigned}

			rec := s.do(t, http.MethodPost, "/slots/search", tt.id, tt.role, SearchSlotsRequest{
				StartDate:      "2024-06-10",
				EndDate:        "2024-06-16",
				PsychologistID: filter.String(),
			})
			require.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, s.avail.query.PsychologistID)
			assert.Equal(t, *tt.want, *s.avail.query.PsychologistID)

			var days []availability.DaySlots
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&days))
			assert.Equal(t, []string{"09:00", "09:30"}, days[0].Slots)
		})
	}
}

func TestSearchSlotsValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/slots/search", uuid.New(), auth.RoleUser, SearchSlotsRequest{EndDate: "2024-06-16"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_fields", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/slots/search", uuid.New(), auth.RoleUser, SearchSlotsRequest{StartDate: "10-06-2024", EndDate: "2024-06-16"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_parameter", decodeError(t, rec).Error)
}

func TestCancelPassesActor(t *testing.T) {
	s := newTestServer(t, nil)
	staffID := uuid.New()

	rec := s.do(t, http.MethodPatch, "/appointments/"+uuid.NewString()+"/cancel", staffID, auth.RoleOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Staff{ID: staffID, Level: auth.RoleOwner}, s.appts.cancelBy)

	rec = s.do(t, http.MethodPatch, "/appointments/not-a-uuid/cancel", staffID, auth.RoleOwner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	psychologist := uuid.New()
	path := "/appointments/" + uuid.NewString() + "/report"

	rec := s.do(t, http.MethodGet, path, psychologist, auth.RolePsychologist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, psychologist, s.appts.reportBy)

	rec = s.do(t, http.MethodPost, path, psychologist, auth.RolePsychologist, SubmitReportRequest{
		Goals:     "g",
		Anamnesis: "a",
		NextDate:  "2024-06-19",
		NextTime:  "10:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-06-19", s.appts.reportIn.NextDate)

	var resp SubmitReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp.NextAppointment)

	rec = s.do(t, http.MethodPost, path, psychologist, auth.RolePsychologist, SubmitReportRequest{
		Birthdate:    "1990-03-04",
		ExternalName: "EMP-0042",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1990-03-04", s.appts.reportIn.Birthdate)
	assert.Equal(t, "EMP-0042", s.appts.reportIn.ExternalName)

	rec = s.do(t, http.MethodPost, path, uuid.New(), auth.RoleUser, SubmitReportRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAvailabilityOwnership(t *testing.T) {
	s := newTestServer(t, nil)
	psychologist := uuid.New()
	path := "/psychologists/" + psychologist.String() + "/availability/2024-06-10/2024-06-16"

	rec := s.do(t, http.MethodGet, path, psychologist, auth.RolePsychologist, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, path, uuid.New(), auth.RolePsychologist, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, path, uuid.New(), auth.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, path, uuid.New(), auth.RoleSysadmin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaveAvailability(t *testing.T) {
	s := newTestServer(t, nil)
	psychologist := uuid.New()
	path := "/psychologists/" + psychologist.String() + "/availability/2024-06-10/2024-06-16"

	rec := s.do(t, http.MethodPut, path, psychologist, auth.RolePsychologist, SaveAvailabilityRequest{
		Days: []DayPayload{{Date: "2024-06-11", Slots: []SlotPayload{{Start: 540, End: 630}}}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, s.avail.saved, 1)
	assert.Equal(t, psychologist, s.avail.saved[0].PsychologistID)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), s.avail.saved[0].Date)
	assert.Equal(t, 540, s.avail.saved[0].Slots[0].Start)

	rec = s.do(t, http.MethodPut, path, psychologist, auth.RolePsychologist, SaveAvailabilityRequest{
		Days: []DayPayload{{Date: "11/06/2024"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecurringEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	psychologist := uuid.New()
	slotID := uuid.New()
	base := "/psychologists/" + psychologist.String() + "/availability/recurring"

	rec := s.do(t, http.MethodPatch, base, psychologist, auth.RolePsychologist, RecurringSlotRequest{
		ID:           slotID.String(),
		Date:         "2024-06-03",
		Start:        540,
		End:          600,
		RecurringEnd: "2024-06-24",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, slotID, s.avail.recurred.OriginSlotID)
	assert.Equal(t, 600, s.avail.recurred.End)

	rec = s.do(t, http.MethodDelete, base+"/"+slotID.String()+"/date/2024-06-10", psychologist, auth.RolePsychologist, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteRecurringResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.DaysChanged)
}

func TestRateLimitPerActor(t *testing.T) {
	s := newTestServer(t, NewRateLimiter(0.001, 1))
	userID := uuid.New()
	body := BookAppointmentRequest{Date: "2024-06-12", Time: "10:00"}

	rec := s.do(t, http.MethodPost, "/appointments", userID, auth.RoleUser, body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments", userID, auth.RoleUser, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = s.do(t, http.MethodPost, "/appointments", uuid.New(), auth.RoleUser, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), uuid.New(), auth.RoleAdmin, nil)

	rec := s.do(t, http.MethodGet, "/metrics", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/appointments/{id}",status="200"} 1`)
}

func TestSearchAppointments(t *testing.T) {
	s := newTestServer(t, nil)
	staffID, businessID := uuid.New(), uuid.New()

	rec := s.do(t, http.MethodPost, "/appointments/search", staffID, auth.RoleAdmin, SearchAppointmentsRequest{
		Search:     "acme",
		ClientName: "Acme",
		BusinessID: &businessID,
		Page:       2,
		PerPage:    5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, auth.Staff{ID: staffID, Level: auth.RoleAdmin}, s.appts.listedBy)
	assert.Equal(t, "acme", s.appts.listFilter.Search)
	assert.Equal(t, "Acme", s.appts.listFilter.BusinessName)
	require.NotNil(t, s.appts.listFilter.BusinessID)
	assert.Equal(t, businessID, *s.appts.listFilter.BusinessID)
	assert.Equal(t, appointment.Page{Limit: 5, Offset: 10}, s.appts.listPage)

	var resp AppointmentPageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 1)
	assert.Equal(t, 31, resp.Total)

	userID := uuid.New()
	rec = s.do(t, http.MethodPost, "/appointments/search", userID, auth.RoleUser, SearchAppointmentsRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.User{ID: userID}, s.appts.listedBy)
	assert.Equal(t, appointment.Page{Limit: appointment.DefaultPageSize}, s.appts.listPage)
}

func TestPsychologistAgendaEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	psychologist := uuid.New()
	base := "/psychologists/" + psychologist.String() + "/appointments"

	rec := s.do(t, http.MethodGet, base, psychologist, auth.RolePsychologist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, psychologist, s.appts.agendaOf)

	var agenda AgendaResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&agenda))
	assert.Len(t, agenda.NextAppointments, 2)
	assert.NotNil(t, agenda.PendingReport)
	assert.Empty(t, agenda.PendingReport)

	rec = s.do(t, http.MethodGet, base+"/past/2024-06-01/2024-06-09", psychologist, auth.RolePsychologist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), s.appts.pastRange[0])
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), s.appts.pastRange[1])

	rec = s.do(t, http.MethodGet, base, uuid.New(), auth.RolePsychologist, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, base+"/past/2024-06-01/junk", psychologist, auth.RolePsychologist, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, base, uuid.New(), auth.RoleOwner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

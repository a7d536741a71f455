package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
)

const (
	constraintNumber      = "appointments_consultation_number_key"
	constraintActiveStart = "appointments_psychologist_start_active"
)

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

const appointmentColumns = `
	id, consultation_number, user_id, psychologist_id, business_id, treatment_id,
	start_date, end_date, duration,
	cancelled, cancelled_by, cancelled_date, cancelled_paid,
	finished, next_appointment_id, diagnostics,
	clinical_intervention, clinical_record, goals_next_consultation,
	reminded_at, created_at, updated_at`

const treatmentColumns = `
	id, user_id, diagnostics, start_date, medication, medication_description,
	goals, anamnesis, clinical_discharge, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelledBy *string

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.UserID,
		&a.PsychologistID,
		&a.BusinessID,
		&a.TreatmentID,
		&a.StartDate,
		&a.EndDate,
		&a.Duration,
		&a.Cancelled,
		&cancelledBy,
		&a.CancelledDate,
		&a.CancelledPaid,
		&a.Finished,
		&a.NextAppointmentID,
		&a.Diagnostics,
		&a.ClinicalIntervention,
		&a.ClinicalRecord,
		&a.GoalsNextConsultation,
		&a.RemindedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if cancelledBy != nil {
		by := CancelledBy(*cancelledBy)
		a.CancelledBy = &by
	}
	return &a, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Diagnostics,
		&t.StartDate,
		&t.Medication,
		&t.MedicationDescription,
		&t.Goals,
		&t.Anamnesis,
		&t.ClinicalDischarge,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func ids(v []uuid.UUID) []uuid.UUID {
	if v == nil {
		return []uuid.UUID{}
	}
	return v
}

// Interface methods

func (r *PgRepository) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&PgRepository{db: tx})
	})
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// listWhere renders f as a WHERE clause with positional arguments.
func listWhere(f ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.UserID != nil {
		clauses = append(clauses, "user_id = "+arg(*f.UserID))
	}
	if f.PsychologistID != nil {
		clauses = append(clauses, "psychologist_id = "+arg(*f.PsychologistID))
	}
	if f.BusinessID != nil {
		clauses = append(clauses, "business_id = "+arg(*f.BusinessID))
	}
	if f.From != nil {
		clauses = append(clauses, "start_date >= "+arg(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "start_date < "+arg(*f.To))
	}
	if f.Cancelled != nil {
		clauses = append(clauses, "cancelled = "+arg(*f.Cancelled))
	}
	if f.Finished != nil {
		clauses = append(clauses, "finished = "+arg(*f.Finished))
	}
	if f.Search != "" {
		p := arg(likePattern(f.Search))
		clauses = append(clauses, "(user_id IN (SELECT id FROM users WHERE email ILIKE "+p+")"+
			" OR psychologist_id IN (SELECT id FROM psychologists WHERE name ILIKE "+p+")"+
			" OR business_id IN (SELECT id FROM businesses WHERE name ILIKE "+p+"))")
	}
	if f.UserName != "" {
		clauses = append(clauses, "user_id IN (SELECT id FROM users WHERE name ILIKE "+arg(likePattern(f.UserName))+")")
	}
	if f.PsychologistName != "" {
		clauses = append(clauses, "psychologist_id IN (SELECT id FROM psychologists WHERE name ILIKE "+arg(likePattern(f.PsychologistName))+")")
	}
	if f.BusinessName != "" {
		clauses = append(clauses, "business_id IN (SELECT id FROM businesses WHERE name ILIKE "+arg(likePattern(f.BusinessName))+")")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter, p Page) ([]Appointment, int, error) {
	where, args := listWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	if total == 0 || p.Offset >= total {
		return nil, total, nil
	}

	order := "start_date DESC, id"
	if f.Ascending {
		order = "start_date, id"
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + where + ` ORDER BY ` + order
	if p.Limit > 0 {
		args = append(args, p.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if p.Offset > 0 {
		args = append(args, p.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PgRepository) MaxConsultationNumber(ctx context.Context) (int, error) {
	var raw *string
	err := r.db.QueryRow(ctx, `
		SELECT consultation_number
		FROM appointments
		ORDER BY length(consultation_number) DESC, consultation_number DESC
		LIMIT 1
	`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read last consultation number: %w", err)
	}
	if raw == nil {
		return 0, nil
	}

	n, err := strconv.Atoi(*raw)
	if err != nil {
		return 0, fmt.Errorf("parse consultation number %q: %w", *raw, err)
	}
	return n, nil
}

// InsertAppointment runs in its own savepoint so a unique violation leaves an
// enclosing transaction usable for the next numbering attempt.
func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (
				id, consultation_number, user_id, psychologist_id, business_id, treatment_id,
				start_date, end_date, duration, diagnostics, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			RETURNING `+appointmentColumns,
			a.ID, a.Number, a.UserID, a.PsychologistID, a.BusinessID, a.TreatmentID,
			a.StartDate, a.EndDate, a.Duration, ids(a.Diagnostics))

		inserted, err := scanAppointment(row)
		if err != nil {
			return err
		}
		*a = *inserted
		return nil
	})
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			switch constraint {
			case constraintNumber:
				return ErrNumberTaken
			case constraintActiveStart:
				return ErrSlotTaken
			}
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_date = $2,
		    end_date = $3,
		    reminded_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND NOT cancelled
		  AND NOT finished
		RETURNING `+appointmentColumns, id, start, end)

	a, err := scanAppointment(row)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintActiveStart {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID, by CancelledBy, at time.Time, paid bool) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET cancelled = true,
		    cancelled_by = $2,
		    cancelled_date = $3,
		    cancelled_paid = $4,
		    updated_at = now()
		WHERE id = $1
		  AND NOT cancelled
		RETURNING `+appointmentColumns, id, string(by), at, paid)

	return scanAppointment(row)
}

func (r *PgRepository) Finish(ctx context.Context, id uuid.UUID, f FinishFields) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET finished = true,
		    treatment_id = $2,
		    diagnostics = $3,
		    clinical_intervention = $4,
		    clinical_record = $5,
		    goals_next_consultation = $6,
		    next_appointment_id = $7,
		    updated_at = now()
		WHERE id = $1
		  AND NOT finished
		  AND NOT cancelled
	`, id, f.TreatmentID, ids(f.Diagnostics), f.ClinicalIntervention, f.ClinicalRecord,
		f.GoalsNextConsultation, f.NextAppointmentID)
	if err != nil {
		return fmt.Errorf("finish appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CountUserAppointments(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE user_id = $1
		  AND NOT cancelled
		  AND start_date >= $2
		  AND start_date < $3
	`, userID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user appointments: %w", err)
	}
	return n, nil
}

// ListBookings returns active appointments intersecting [from, to). A nil
// psychologistIDs means every psychologist.
func (r *PgRepository) ListBookings(ctx context.Context, from, to time.Time, psychologistIDs []uuid.UUID) ([]availability.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, psychologist_id, start_date, end_date
		FROM appointments
		WHERE NOT cancelled
		  AND start_date < $2
		  AND end_date > $1
		  AND ($3::uuid[] IS NULL OR psychologist_id = ANY($3))
		ORDER BY start_date
	`, from, to, psychologistIDs)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var b availability.Booking
		if err := rows.Scan(&b.AppointmentID, &b.PsychologistID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE NOT cancelled
		  AND NOT finished
		  AND reminded_at IS NULL
		  AND start_date >= $1
		  AND start_date <= $2
		ORDER BY start_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkReminded stamps reminded_at unless another worker got there first.
func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminded_at = $2
		WHERE id = $1
		  AND reminded_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark reminded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) GetOpenTreatment(ctx context.Context, userID uuid.UUID) (*Treatment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+treatmentColumns+`
		FROM treatments
		WHERE user_id = $1
		  AND clinical_discharge IS NULL
	`, userID)
	return scanTreatment(row)
}

func (r *PgRepository) InsertTreatment(ctx context.Context, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO treatments (
			id, user_id, diagnostics, start_date, medication, medication_description,
			goals, anamnesis, clinical_discharge, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+treatmentColumns,
		t.ID, t.UserID, ids(t.Diagnostics), t.StartDate, t.Medication, t.MedicationDescription,
		t.Goals, t.Anamnesis, t.ClinicalDischarge)

	inserted, err := scanTreatment(row)
	if err != nil {
		return fmt.Errorf("insert treatment: %w", err)
	}
	*t = *inserted
	return nil
}

func (r *PgRepository) UpdateTreatment(ctx context.Context, t *Treatment) error {
	row := r.db.QueryRow(ctx, `
		UPDATE treatments
		SET diagnostics = $2,
		    medication = $3,
		    medication_description = $4,
		    goals = $5,
		    anamnesis = $6,
		    clinical_discharge = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+treatmentColumns,
		t.ID, ids(t.Diagnostics), t.Medication, t.MedicationDescription,
		t.Goals, t.Anamnesis, t.ClinicalDischarge)

	updated, err := scanTreatment(row)
	if err != nil {
		return fmt.Errorf("update treatment: %w", err)
	}
	*t = *updated
	return nil
}

// AssignPsychologist and UpdateUserProfile write through the directory on the
// repository's connection, so inside WithinTx they share its transaction.
func (r *PgRepository) AssignPsychologist(ctx context.Context, userID, psychologistID uuid.UUID) error {
	return directory.NewPgDirectory(r.db).AssignPsychologist(ctx, userID, psychologistID)
}

func (r *PgRepository) UpdateUserProfile(ctx context.Context, userID uuid.UUID, p directory.Profile) error {
	return directory.NewPgDirectory(r.db).UpdateProfile(ctx, userID, p)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

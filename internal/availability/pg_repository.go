package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

const dayColumns = `id, psychologist_id, day, slots, created_at, updated_at`

// Helpers

func scanDay(row pgx.Row) (*Day, error) {
	var d Day
	var raw []byte

	err := row.Scan(
		&d.ID,
		&d.PsychologistID,
		&d.Date,
		&raw,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDayNotFound
		}
		return nil, err
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Slots); err != nil {
			return nil, fmt.Errorf("decode slots of day %s: %w", d.ID, err)
		}
	}
	if d.Slots == nil {
		d.Slots = []Slot{}
	}
	return &d, nil
}

func collectDays(rows pgx.Rows) ([]Day, error) {
	defer rows.Close()

	var out []Day
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeSlots(slots []Slot) ([]byte, error) {
	if slots == nil {
		slots = []Slot{}
	}
	return json.Marshal(slots)
}

// Interface methods

func (r *PgRepository) ListDays(ctx context.Context, from, to time.Time, psychologistID *uuid.UUID) ([]Day, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+dayColumns+`
		FROM availability_days
		WHERE day BETWEEN $1 AND $2
		  AND ($3::uuid IS NULL OR psychologist_id = $3)
		ORDER BY day, psychologist_id
	`, from, to, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("list availability days: %w", err)
	}
	return collectDays(rows)
}

func (r *PgRepository) GetDay(ctx context.Context, psychologistID uuid.UUID, date time.Time) (*Day, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+dayColumns+`
		FROM availability_days
		WHERE psychologist_id = $1 AND day = $2
	`, psychologistID, date)
	return scanDay(row)
}

func (r *PgRepository) ReplaceDays(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, days []Day) ([]Day, error) {
	var saved []Day
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM availability_days
			WHERE psychologist_id = $1 AND day BETWEEN $2 AND $3
		`, psychologistID, from, to); err != nil {
			return fmt.Errorf("delete availability days: %w", err)
		}

		txRepo := &PgRepository{db: tx}
		for i := range days {
			d := days[i]
			if err := txRepo.insertDay(ctx, &d); err != nil {
				return err
			}
			saved = append(saved, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) insertDay(ctx context.Context, d *Day) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	raw, err := encodeSlots(d.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_days (id, psychologist_id, day, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now(), now())
		RETURNING `+dayColumns, d.ID, d.PsychologistID, d.Date, raw)

	inserted, err := scanDay(row)
	if err != nil {
		return fmt.Errorf("insert availability day: %w", err)
	}
	*d = *inserted
	return nil
}

func (r *PgRepository) SaveDay(ctx context.Context, d *Day) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	raw, err := encodeSlots(d.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_days (id, psychologist_id, day, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now(), now())
		ON CONFLICT ON CONSTRAINT availability_days_psychologist_day_key
		DO UPDATE SET slots = EXCLUDED.slots, updated_at = now()
		RETURNING `+dayColumns, d.ID, d.PsychologistID, d.Date, raw)

	saved, err := scanDay(row)
	if err != nil {
		return fmt.Errorf("save availability day: %w", err)
	}
	*d = *saved
	return nil
}

func (r *PgRepository) DeleteDay(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_days WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability day: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotFound
	}
	return nil
}

func (r *PgRepository) ListDaysWithOrigin(ctx context.Context, psychologistID, originSlotID uuid.UUID, after time.Time) ([]Day, error) {
	probe, err := json.Marshal([]map[string]string{{"recurringOriginSlot": originSlotID.String()}})
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+dayColumns+`
		FROM availability_days
		WHERE psychologist_id = $1
		  AND day > $2
		  AND slots @> $3::jsonb
		ORDER BY day
	`, psychologistID, after, probe)
	if err != nil {
		return nil, fmt.Errorf("list days by recurring origin: %w", err)
	}
	return collectDays(rows)
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&PgRepository{db: tx})
	})
}

// Package directory answers the questions the scheduling core asks about
// businesses, users and psychologists.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
	"github.com/hackgods/telehealth-scheduling/internal/db"
)

var (
	ErrBusinessNotFound = fmt.Errorf("%w: no active business for user", apperr.ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user not found", apperr.ErrNotFound)
)

// Quota is the consultation budget of the business a user belongs to.
type Quota struct {
	BusinessID uuid.UUID
	Bought     int
	Used       int
	// PerUser caps consultations per user per month. Zero means no cap.
	PerUser int
}

// Exhausted reports whether the business has no consultations left.
func (q Quota) Exhausted() bool {
	return q.Used >= q.Bought
}

type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Language       string
	PsychologistID *uuid.UUID
}

// Profile holds the user fields a psychologist may correct while reporting.
// Zero fields are left untouched.
type Profile struct {
	Birthdate    *time.Time
	ExternalName string
}

func (p Profile) Empty() bool {
	return p.Birthdate == nil && p.ExternalName == ""
}

// Party is someone to notify about an appointment.
type Party struct {
	Name       string
	Email      string
	Language   string
	PushTokens []string
}

type Recipients struct {
	User         Party
	Psychologist Party
}

type PgDirectory struct {
	db db.DBTX
}

func NewPgDirectory(conn db.DBTX) *PgDirectory {
	return &PgDirectory{db: conn}
}

// BusinessQuota sums the contracts of the user's active business and counts
// its non-cancelled appointments.
func (d *PgDirectory) BusinessQuota(ctx context.Context, userID uuid.UUID) (Quota, error) {
	var q Quota
	err := d.db.QueryRow(ctx, `
		SELECT b.id,
		       COALESCE((SELECT sum(c.value) FROM contracts c WHERE c.business_id = b.id), 0),
		       (SELECT count(*) FROM appointments a WHERE a.business_id = b.id AND NOT a.cancelled),
		       b.consultations_per_user
		FROM businesses b
		JOIN business_users bu ON bu.business_id = b.id
		WHERE bu.user_id = $1
		  AND bu.is_active
		  AND b.is_active
		ORDER BY b.created_at
		LIMIT 1
	`, userID).Scan(&q.BusinessID, &q.Bought, &q.Used, &q.PerUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quota{}, ErrBusinessNotFound
		}
		return Quota{}, fmt.Errorf("load business quota: %w", err)
	}
	return q, nil
}

func (d *PgDirectory) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var u User
	err := d.db.QueryRow(ctx, `
		SELECT id, name, email, language, psychologist_id
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Language, &u.PsychologistID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (d *PgDirectory) AssignPsychologist(ctx context.Context, userID, psychologistID uuid.UUID) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE users
		SET psychologist_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, userID, psychologistID)
	if err != nil {
		return fmt.Errorf("assign psychologist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (d *PgDirectory) UpdateProfile(ctx context.Context, userID uuid.UUID, p Profile) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE users
		SET birthdate = COALESCE($2, birthdate),
		    external_name = COALESCE(NULLIF($3, ''), external_name),
		    updated_at = now()
		WHERE id = $1
	`, userID, p.Birthdate, p.ExternalName)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ActivePsychologists lists psychologists that are active and confirmed.
func (d *PgDirectory) ActivePsychologists(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id
		FROM psychologists
		WHERE is_active AND is_confirmed
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active psychologists: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Recipients loads contact details and push tokens of both parties of an
// appointment.
func (d *PgDirectory) Recipients(ctx context.Context, userID, psychologistID uuid.UUID) (*Recipients, error) {
	var r Recipients

	err := d.db.QueryRow(ctx, `
		SELECT u.name, u.email, u.language, p.name, p.email, p.language
		FROM users u, psychologists p
		WHERE u.id = $1 AND p.id = $2
	`, userID, psychologistID).Scan(
		&r.User.Name, &r.User.Email, &r.User.Language,
		&r.Psychologist.Name, &r.Psychologist.Email, &r.Psychologist.Language,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	rows, err := d.db.Query(ctx, `
		SELECT user_id IS NOT NULL, token
		FROM notification_tokens
		WHERE user_id = $1 OR psychologist_id = $2
	`, userID, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("load push tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var forUser bool
		var token string
		if err := rows.Scan(&forUser, &token); err != nil {
			return nil, err
		}
		if forUser {
			r.User.PushTokens = append(r.User.PushTokens, token)
		} else {
			r.Psychologist.PushTokens = append(r.Psychologist.PushTokens, token)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

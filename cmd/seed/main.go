package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telehealth-scheduling/internal/app"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
)

type seedOptions struct {
	businesses    int
	psychologists int
	users         int
	days          int
	quota         int
}

func main() {
	var opts seedOptions

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with fake businesses, psychologists, users and availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().IntVar(&opts.businesses, "businesses", 10, "number of client businesses")
	rootCmd.Flags().IntVar(&opts.psychologists, "psychologists", 50, "number of psychologists")
	rootCmd.Flags().IntVar(&opts.users, "users", 5000, "number of users spread across businesses")
	rootCmd.Flags().IntVar(&opts.days, "days", 14, "days of availability to create from today")
	rootCmd.Flags().IntVar(&opts.quota, "quota", 2, "monthly consultations per user, 0 for unlimited")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	logger := app.NewLogger(cfg.Env)
	logger.Info().Msg("seed starting")

	cal, err := calendar.New(cfg.BusinessTimezone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	bg := context.Background()

	businesses, err := seedBusinesses(bg, pool, opts.businesses, opts.quota, logger)
	if err != nil {
		return fmt.Errorf("seed businesses: %w", err)
	}
	psychologists, err := seedPsychologists(bg, pool, opts.psychologists, logger)
	if err != nil {
		return fmt.Errorf("seed psychologists: %w", err)
	}
	if err := seedUsers(bg, pool, businesses, opts.users, logger); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if err := seedAvailability(bg, pool, cal, psychologists, opts.days, logger); err != nil {
		return fmt.Errorf("seed availability: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedBusinesses(ctx context.Context, pool *pgxpool.Pool, count, quota int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding businesses")

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO businesses (id, name, is_active, consultations_per_user, created_at, updated_at)
				VALUES ($1, $2, true, $3, now(), now())
			`, id, gofakeit.Company(), quota)
			if err != nil {
				return err
			}

			start := time.Now().AddDate(0, -gofakeit.Number(0, 6), 0)
			_, err = tx.Exec(ctx, `
				INSERT INTO contracts (id, business_id, start_date, end_date, description, value, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, now())
			`, uuid.New(), id, calendar.Day(start), calendar.Day(start.AddDate(1, 0, 0)),
				gofakeit.Sentence(6), gofakeit.Number(50, 500))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("businesses seeded")
	return ids, nil
}

func seedPsychologists(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding psychologists")

	languages := []string{"pt", "en", "es"}

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO psychologists (id, name, email, language, is_active, is_confirmed, created_at, updated_at)
				VALUES ($1, $2, $3, $4, true, true, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email(), languages[gofakeit.Number(0, len(languages)-1)])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("psychologists seeded")
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, businesses []uuid.UUID, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding users")
	if len(businesses) == 0 {
		return fmt.Errorf("no businesses to attach users to")
	}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id := uuid.New()
				_, err := tx.Exec(ctx, `
					INSERT INTO users (id, name, email, language, created_at, updated_at)
					VALUES ($1, $2, $3, 'pt', now(), now())
				`, id, gofakeit.Name(), gofakeit.Email())
				if err != nil {
					return err
				}

				_, err = tx.Exec(ctx, `
					INSERT INTO business_users (business_id, user_id, is_active)
					VALUES ($1, $2, true)
				`, businesses[i%len(businesses)], id)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("users seeded")
	}

	return nil
}

// seedAvailability gives every psychologist a morning and an afternoon slot on
// each weekday of the next days.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, cal calendar.Calendar, psychologists []uuid.UUID, days int, logger zerolog.Logger) error {
	logger.Info().Int("psychologists", len(psychologists)).Int("days", days).Msg("seeding availability")

	repo := availability.NewPgRepository(pool)
	today := cal.Today(time.Now())
	last := today.AddDate(0, 0, days-1)

	saved := 0
	for _, psych := range psychologists {
		morning := 30 * gofakeit.Number(14, 20) // 07:00 - 10:00
		afternoon := 30 * gofakeit.Number(26, 30)

		var saveErr error
		calendar.EachDay(today, last, 1, func(day time.Time) {
			if saveErr != nil {
				return
			}
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				return
			}
			d := &availability.Day{
				PsychologistID: psych,
				Date:           day,
				Slots: []availability.Slot{
					{ID: uuid.New(), Start: morning, End: morning + 180},
					{ID: uuid.New(), Start: afternoon, End: afternoon + 240},
				},
			}
			if err := repo.SaveDay(ctx, d); err != nil {
				saveErr = err
				return
			}
			saved++
		})
		if saveErr != nil {
			return saveErr
		}
	}

	logger.Info().Int("days_saved", saved).Msg("availability seeded")
	return nil
}

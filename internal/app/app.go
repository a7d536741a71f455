// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

// NewLogger writes JSON in prod and a console format everywhere else.
func NewLogger(env string) zerolog.Logger {
	if env == "prod" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Calendar calendar.Calendar
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	Directory    *directory.PgDirectory
	Dispatcher   *notify.Dispatcher
	Availability *availability.Service
	Appointments *appointment.Service
}

// New connects Postgres and Redis and builds every service.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	cal, err := calendar.New(cfg.BusinessTimezone)
	if err != nil {
		return nil, err
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(registry)

	dir := directory.NewPgDirectory(pool)
	days := availability.NewPgRepository(pool)
	appointments := appointment.NewPgRepository(pool)

	sinks := notify.Sinks{Publisher: redisclient.NewPublisher(rdb)}
	if cfg.SMTP.Enabled() {
		sinks.Mailer = notify.NewSMTPMailer(cfg.SMTP)
	}
	if cfg.PushEnabled {
		sinks.Pusher = notify.NewExpoPusher(expo.NewPushClient(nil))
	}
	dispatcher := notify.NewDispatcher(sinks, dir, cal, logger)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    rdb,
		Calendar: cal,
		Registry: registry,
		Metrics:  rec,

		Directory:    dir,
		Dispatcher:   dispatcher,
		Availability: availability.NewService(days, appointments, dir, cal, rec, logger),
		Appointments: appointment.NewService(appointments, cfg, cal, appointment.Deps{
			Days:      days,
			Roster:    dir,
			Directory: dir,
			Locker:    redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait, logger),
			Notifier:  dispatcher,
			Metrics:   rec,
		}, logger),
	}

	logger.Info().
		Str("timezone", cfg.BusinessTimezone).
		Int("appointment_duration", cfg.AppointmentDuration).
		Bool("smtp", cfg.SMTP.Enabled()).
		Bool("push", cfg.PushEnabled).
		Msg("services ready")
	return a, nil
}

// Close waits for pending notifications and releases connections.
func (a *App) Close() {
	a.Dispatcher.Wait()
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("error closing redis")
	}
	a.Pool.Close()
}

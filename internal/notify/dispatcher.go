// Package notify tells users and psychologists about appointment changes.
// Delivery never affects the outcome of the scheduling operation that
// triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/directory"
)

const (
	defaultTimeout = 15 * time.Second
	maxInFlight    = 8
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

type RecipientLookup interface {
	Recipients(ctx context.Context, userID, psychologistID uuid.UUID) (*directory.Recipients, error)
}

// Dispatcher fans events out to the configured sinks. Any sink may be nil.
type Dispatcher struct {
	publisher  Publisher
	mailer     Mailer
	pusher     Pusher
	recipients RecipientLookup
	cal        calendar.Calendar
	timeout    time.Duration
	logger     zerolog.Logger

	wg sync.WaitGroup
}

type Sinks struct {
	Publisher Publisher
	Mailer    Mailer
	Pusher    Pusher
}

func NewDispatcher(sinks Sinks, recipients RecipientLookup, cal calendar.Calendar, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher:  sinks.Publisher,
		mailer:     sinks.Mailer,
		pusher:     sinks.Pusher,
		recipients: recipients,
		cal:        cal,
		timeout:    defaultTimeout,
		logger:     logger.With().Str("component", "notify").Logger(),
	}
}

// Notify dispatches ev in the background. The caller's cancellation does not
// stop delivery; the dispatcher's own timeout does.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.Dispatch(sendCtx, ev); err != nil {
			d.logger.Warn().Err(err).
				Str("event", string(ev.Type)).
				Str("appointment_id", ev.AppointmentID.String()).
				Msg("notification delivery failed")
		}
	}()
}

// Wait blocks until every background dispatch has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch delivers ev to every sink and returns the joined sink errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var messages []Message
	if d.mailer != nil || d.pusher != nil {
		msgs, err := d.messagesFor(ctx, ev)
		record(err)
		messages = msgs
	}

	var g errgroup.Group
	g.SetLimit(maxInFlight)

	if d.publisher != nil {
		g.Go(func() error {
			record(d.publisher.Publish(ctx, string(ev.Type), ev))
			return nil
		})
	}

	data := map[string]string{
		"notifType":      "consultation",
		"consultationId": ev.AppointmentID.String(),
	}
	for _, m := range messages {
		m := m
		if d.mailer != nil && m.To.Email != "" {
			g.Go(func() error {
				record(d.mailer.Send(ctx, m.To.Email, m.Title, m.Body))
				return nil
			})
		}
		if d.pusher != nil && len(m.To.PushTokens) > 0 {
			g.Go(func() error {
				err := d.pusher.Push(ctx, m.To.PushTokens, m.Title, m.Body, data)
				if errors.Is(err, ErrNoValidTokens) {
					return nil
				}
				record(err)
				return nil
			})
		}
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) messagesFor(ctx context.Context, ev Event) ([]Message, error) {
	if _, ok := titles[ev.Type]; !ok {
		return nil, nil
	}
	if d.recipients == nil {
		return nil, nil
	}
	r, err := d.recipients.Recipients(ctx, ev.UserID, ev.PsychologistID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return compose(ev, r, d.cal.Location()), nil
}

package appointment

import (
	"context"
	"errors"
	"fmt"
)

const numberWidth = 6

func formatNumber(n int) string {
	return fmt.Sprintf("%0*d", numberWidth, n)
}

// insertNumbered gives a the number after the current maximum and inserts it.
// When a concurrent booking takes the same number first, the maximum is read
// again, up to NumberingMaxAttempts times.
func (s *Service) insertNumbered(ctx context.Context, repo Repository, a *Appointment) error {
	for attempt := 1; attempt <= s.cfg.NumberingMaxAttempts; attempt++ {
		last, err := repo.MaxConsultationNumber(ctx)
		if err != nil {
			return err
		}
		a.Number = formatNumber(last + 1)

		err = repo.InsertAppointment(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return err
		}

		s.metrics.NumberingRetry()
		s.logger.Debug().
			Str("number", a.Number).
			Int("attempt", attempt).
			Msg("consultation number taken, retrying")
	}

	s.logger.Error().
		Int("attempts", s.cfg.NumberingMaxAttempts).
		Msg("consultation numbering exhausted")
	return ErrNumberingExhausted
}

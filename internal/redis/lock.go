package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

const lockRetryInterval = 25 * time.Millisecond

// Locker is used by the appointment service to serialise allocate+insert for
// bookings that fall on the same calendar day.
type Locker interface {
	WithDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger zerolog.Logger
}

// NewRedisDayLocker creates a locker that uses a per day Redis key. A caller
// that finds the key taken polls for up to wait before giving up.
func NewRedisDayLocker(client *redis.Client, ttl, wait time.Duration, logger zerolog.Logger) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger.With().Str("component", "day_lock").Logger(),
	}
}

func dayLockKey(day time.Time) string {
	return fmt.Sprintf("lock:booking-day:%s", day.Format("2006-01-02"))
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	key := dayLockKey(day)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer l.releaseQuietly(key, token)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().Add(lockRetryInterval).After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// releaseQuietly runs on a fresh context since the caller's may already be
// done. A key that fails to release still expires after ttl.
func (l *redisDayLocker) releaseQuietly(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.release(ctx, key, token); err != nil {
		l.logger.Warn().
			Err(err).
			Str("key", key).
			Dur("expires_in", l.ttl).
			Msg("failed to release booking lock")
	}
}

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

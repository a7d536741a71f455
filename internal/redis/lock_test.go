package redisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayLockKey(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "lock:booking-day:2024-06-10", dayLockKey(day))
}

// unreachableClient fails every command without retrying.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFailedReleaseIsLogged(t *testing.T) {
	var buf bytes.Buffer
	locker := NewRedisDayLocker(unreachableClient(t), 5*time.Second, 0, zerolog.New(&buf)).(*redisDayLocker)

	locker.releaseQuietly("lock:booking-day:2024-06-10", "token")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "failed to release booking lock", entry["message"])
	assert.Equal(t, "lock:booking-day:2024-06-10", entry["key"])
	assert.Equal(t, "day_lock", entry["component"])
	assert.NotEmpty(t, entry["error"])
}

func TestWithDayLockSurfacesRedisErrors(t *testing.T) {
	locker := NewRedisDayLocker(unreachableClient(t), 5*time.Second, 0, zerolog.Nop())

	called := false
	err := locker.WithDayLock(context.Background(), time.Now(), func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "acquire booking lock")
	assert.False(t, called)
}

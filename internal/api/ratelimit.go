package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
)

const minLimiterIdle = 10 * time.Minute

type actorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per authenticated actor. Buckets unused
// for idle are dropped; by then they have refilled, so a dropped actor starts
// again from a full bucket exactly as if it had been kept.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[uuid.UUID]*actorLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns nil when rps is not positive; a nil limiter lets
// every request through.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	idle := minLimiterIdle
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
		idle = refill
	}

	return &RateLimiter{
		limiters:  make(map[uuid.UUID]*actorLimiter),
		limit:     rate.Limit(rps),
		burst:     burst,
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *RateLimiter) limiterFor(id uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	entry, ok := l.limiters[id]
	if !ok {
		entry = &actorLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep must be called with mu held.
func (l *RateLimiter) sweep(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idle {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// Middleware must run after Authenticate.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.FromContext(r.Context())
		if ok && !l.limiterFor(actor.ActorID()).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

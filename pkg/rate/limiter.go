package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

// LimiterCtor allows the creation of a Limiter using a provided rate.
type LimiterCtor func(rate float64) Limiter

type localRateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	sync.Mutex
	limiters  map[string]*keyedLimiter
	lastSweep time.Time
}

type keyedLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

// NewLocalRateLimiter returns an in memory limiter allowing limit operations
// per second for each key, with bursts of up to limit operations. Rates
// below one per second still allow a burst of one.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}
	return NewLocalRateLimiterWithBurst(limit, burst)
}

// NewLocalRateLimiterWithBurst is like NewLocalRateLimiter with an explicit
// burst size. Keys unused for long enough to have refilled their burst are
// periodically forgotten.
func NewLocalRateLimiterWithBurst(limit rate.Limit, burst int) Limiter {
	ttl := time.Minute
	if limit > 0 {
		refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
		if refill > ttl {
			ttl = refill
		}
	}

	return &localRateLimiter{
		limit:     limit,
		burst:     burst,
		ttl:       ttl,
		limiters:  make(map[string]*keyedLimiter),
		lastSweep: time.Now(),
	}
}

// Allow implements limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	now := time.Now()

	l.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = &keyedLimiter{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = limiter
	}
	limiter.lastUsed = now
	l.sweep(now)
	l.Unlock()

	return limiter.AllowN(now, 1), nil
}

// sweep drops idle keys, whose limiters would be indistinguishable from new
// ones. Must be called with the lock held.
func (l *localRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now

	for key, limiter := range l.limiters {
		if now.Sub(limiter.lastUsed) >= l.ttl {
			delete(l.limiters, key)
		}
	}
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements limiter.Allow.
func (n *NoLimiter) Allow(key string) (bool, error) {
	return true, nil
}

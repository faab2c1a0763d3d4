package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNoLimiter(t *testing.T) {
	l := &NoLimiter{}
	for i := 0; i < 10000; i++ {
		allowed, err := l.Allow("")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestLocalRateLimiter(t *testing.T) {
	l := NewLocalRateLimiter(rate.Limit(2))

	for i := 0; i < 2; i++ {
		allowed, err := l.Allow("a")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.Allow("a")
	assert.NoError(t, err)
	assert.False(t, allowed)

	// Ensure key partitioning is valid
	for i := 0; i < 2; i++ {
		allowed, err := l.Allow("b")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err = l.Allow("b")
	assert.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalRateLimiter_SlowRate(t *testing.T) {
	l := NewLocalRateLimiter(rate.Limit(0.5))

	allowed, err := l.Allow("a")
	assert.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Allow("a")
	assert.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalRateLimiter_Burst(t *testing.T) {
	l := NewLocalRateLimiterWithBurst(rate.Limit(1), 5)

	for i := 0; i < 5; i++ {
		allowed, err := l.Allow("a")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.Allow("a")
	assert.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalRateLimiter_Sweep(t *testing.T) {
	l := NewLocalRateLimiterWithBurst(rate.Limit(1), 1).(*localRateLimiter)

	allowed, err := l.Allow("a")
	assert.NoError(t, err)
	assert.True(t, allowed)

	l.Lock()
	l.limiters["a"].lastUsed = time.Now().Add(-2 * l.ttl)
	l.lastSweep = time.Now().Add(-2 * l.ttl)
	l.Unlock()

	_, err = l.Allow("b")
	assert.NoError(t, err)

	l.Lock()
	_, ok := l.limiters["a"]
	l.Unlock()
	assert.False(t, ok)
}

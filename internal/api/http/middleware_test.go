package http_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	httpapi "rentloop-backend/internal/api/http"
)

func TestUserRateLimiter_EvictsIdleUsers(t *testing.T) {
	l := httpapi.NewUserRateLimiter(rate.Inf, 1, 50*time.Millisecond)

	first := l.GetLimiter("user-1")
	assert.Same(t, first, l.GetLimiter("user-1"))
	l.GetLimiter("user-2")
	assert.Equal(t, 2, l.ActiveUsers())

	time.Sleep(120 * time.Millisecond)

	assert.NotSame(t, first, l.GetLimiter("user-1"))
}

func TestUserRateLimiter_IdleCoversRefill(t *testing.T) {
	// five tokens at one per second take five seconds to refill, so a tiny idle is raised
	l := httpapi.NewUserRateLimiter(rate.Limit(1), 5, time.Millisecond)

	first := l.GetLimiter("user-1")
	for i := 0; i < 5; i++ {
		assert.True(t, first.Allow())
	}
	time.Sleep(20 * time.Millisecond)

	again := l.GetLimiter("user-1")
	assert.Same(t, first, again)
	assert.False(t, again.Allow())
}

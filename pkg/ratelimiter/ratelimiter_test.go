package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, c *clock) *ratelimiter.Limiter {
	t.Helper()
	l, err := ratelimiter.New(
		ratelimiter.Config{RPS: 1, Burst: 2, IdleTTL: time.Minute},
		ratelimiter.WithClock(c.Now),
	)
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := ratelimiter.New(ratelimiter.Config{RPS: 0, Burst: 1, IdleTTL: time.Minute})
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	t.Run("burst then refill", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Unix(1_700_000_000, 0)}
		l := newLimiter(t, c)

		ok, _ := l.Allow("a")
		assert.True(t, ok)
		ok, _ = l.Allow("a")
		assert.True(t, ok)

		ok, retry := l.Allow("a")
		assert.False(t, ok)
		assert.InDelta(t, time.Second, retry, float64(10*time.Millisecond))

		c.Advance(time.Second)
		ok, _ = l.Allow("a")
		assert.True(t, ok)
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Unix(1_700_000_000, 0)}
		l := newLimiter(t, c)

		l.Allow("a")
		l.Allow("a")
		ok, _ := l.Allow("a")
		assert.False(t, ok)

		ok, _ = l.Allow("b")
		assert.True(t, ok)
	})

	t.Run("idle buckets are dropped", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Unix(1_700_000_000, 0)}
		l := newLimiter(t, c)

		l.Allow("a")
		l.Allow("b")
		assert.Equal(t, 2, l.Len())

		c.Advance(2 * time.Minute)
		l.Allow("c")
		assert.Equal(t, 1, l.Len())
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, c)
	h := ratelimiter.Middleware(l, ratelimiter.ByIP, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:2222").Code)

	rec := do("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1111").Code)
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(requests int, window time.Duration) (*RateLimiter, *manualClock) {
	clock := &manualClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(requests, window, 0)
	rl.now = clock.Now
	return rl, clock
}

func (rl *RateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.RemoteAddr = ip + ":51000"
	return req
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl, clock := newTestLimiter(3, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("198.51.100.4"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("198.51.100.4"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 20, retryAfter, 1)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, RateLimitMessage, body["message"])

	// Other clients have their own bucket
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("198.51.100.5"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// One token refills every window/requests
	clock.Advance(21 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("198.51.100.4"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	rl, clock := newTestLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1"))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	}

	clock.Advance(time.Minute + time.Second)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("192.0.2.1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_SweepForgetsIdleClients(t *testing.T) {
	rl, clock := newTestLimiter(10, time.Minute)
	rl.limiterFor("192.0.2.1")
	clock.Advance(45 * time.Second)
	rl.limiterFor("192.0.2.2")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.clientCount())
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	rl, _ := newTestLimiter(10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	rl.Run(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
	rl.Wait()
}

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 2, 2)
	defer rl.Stop()
	handler := limitedHandler(rl)

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_KeyedByIPNotPort(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()
	handler := limitedHandler(rl)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:2000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()
	handler := limitedHandler(rl)

	var w *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 10)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("old")
	now = now.Add(limiterTTL + time.Minute)
	rl.getLimiter("fresh")

	rl.cleanup()

	assert.Equal(t, 1, rl.Len())
	_, ok := rl.limiters["fresh"]
	assert.True(t, ok)
}

func TestRateLimiter_CleanupEvictsOldestOverCapacity(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 10)
	defer rl.Stop()

	base := time.Now()
	for i := 0; i < maxLimiters+10; i++ {
		at := base.Add(time.Duration(i) * time.Millisecond)
		rl.now = func() time.Time { return at }
		rl.getLimiter(fmt.Sprintf("ip-%d", i))
	}

	rl.cleanup()

	assert.Equal(t, maxLimiters/2, rl.Len())
	_, newest := rl.limiters[fmt.Sprintf("ip-%d", maxLimiters+9)]
	assert.True(t, newest)
	_, oldest := rl.limiters["ip-0"]
	assert.False(t, oldest)
}

func TestRateLimiter_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rl := NewRateLimiter(ctx, 1, 1)
	cancel()
	rl.Stop()
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1000, 1000)
	defer rl.Stop()
	handler := limitedHandler(rl)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = fmt.Sprintf("10.0.%d.1:80", i%5)
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, rl.Len())
}

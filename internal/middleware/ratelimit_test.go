package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryLimiterAllow(t *testing.T) {
	rl := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow(ctx, "key", 5, time.Minute); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if ok, _ := rl.Allow(ctx, "key", 5, time.Minute); ok {
		t.Error("6th request should be denied")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	rl := NewMemoryLimiter()
	ctx := context.Background()

	// Use a very short window
	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "key", 3, 10*time.Millisecond)
	}

	if ok, _ := rl.Allow(ctx, "key", 3, 10*time.Millisecond); ok {
		t.Error("should be blocked within window")
	}

	time.Sleep(15 * time.Millisecond)

	if ok, _ := rl.Allow(ctx, "key", 3, 10*time.Millisecond); !ok {
		t.Error("should be allowed after window expires")
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	rl := NewMemoryLimiter()
	ctx := context.Background()

	rl.Allow(ctx, "expired", 5, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)

	rl.Allow(ctx, "active", 5, time.Minute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewMemoryLimiter()
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, keyFunc, 2, time.Minute, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest("POST", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler := RateLimit(failingLimiter{}, RealIP, 1, time.Minute, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := RealIP(req); got != "10.0.0.1" {
		t.Errorf("RemoteAddr: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.7" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}

	req.Header.Set("CF-Connecting-IP", "198.51.100.2")
	if got := RealIP(req); got != "198.51.100.2" {
		t.Errorf("CF-Connecting-IP: got %q", got)
	}
}

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTakeEnforcesAllowance(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Take("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retryAfter := rl.Take("10.0.0.1")
	if ok {
		t.Fatal("fourth request should be denied")
	}
	if retryAfter <= 0 || retryAfter > 3601 {
		t.Fatalf("retry-after should be within the window, got %d", retryAfter)
	}

	// Other clients keep their own allowance.
	if ok, _ := rl.Take("10.0.0.2"); !ok {
		t.Fatal("a different client should not be affected")
	}
}

func TestTakeResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if ok, _ := rl.Take("10.0.0.1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := rl.Take("10.0.0.1"); ok {
		t.Fatal("second request inside the window should be denied")
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := rl.Take("10.0.0.1"); !ok {
		t.Fatal("allowance should reset after the window")
	}
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/headlines", nil)
	r.RemoteAddr = "192.0.2.7:54002"
	if got := clientAddr(r); got != "192.0.2.7" {
		t.Fatalf("expected remote host without port, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
	if got := clientAddr(r); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/headlines", nil)
	req.RemoteAddr = "192.0.2.7:54002"

	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("limited response should carry Retry-After")
	}
}

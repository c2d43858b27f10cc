package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps how often one client may hit the content endpoints.
// Headline generation and research scoring each spend model budget per call,
// so those routes get a per-client allowance over a fixed window; the rest of
// the API is unmetered.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*quota
	limit   int
	window  time.Duration
	swept   time.Time
}

type quota struct {
	used    int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per client per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*quota),
		limit:   limit,
		window:  window,
		swept:   time.Now(),
	}
}

// Take spends one unit of the client's allowance. When the allowance is
// exhausted it reports false along with the seconds until the window resets.
func (rl *RateLimiter) Take(client string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	q, ok := rl.clients[client]
	if !ok || !now.Before(q.resetAt) {
		rl.clients[client] = &quota{used: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}
	if q.used < rl.limit {
		q.used++
		return true, 0
	}
	return false, int(q.resetAt.Sub(now).Seconds()) + 1
}

// sweep drops expired quotas. Piggybacked on Take so the limiter needs no
// background goroutine; runs at most once per window.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) < rl.window {
		return
	}
	for client, q := range rl.clients {
		if !now.Before(q.resetAt) {
			delete(rl.clients, client)
		}
	}
	rl.swept = now
}

// clientAddr identifies the caller: the first hop of X-Forwarded-For when a
// proxy set it, otherwise the connection's remote host without the port.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware answers 429 with a Retry-After once a client's
// allowance is spent.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := rl.Take(clientAddr(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

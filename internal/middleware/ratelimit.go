package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Specifix5/mikushare/internal/ctxkeys"
	"github.com/Specifix5/mikushare/internal/limiter"
)

// cleanupEvery is how often Allow prunes idle IPs from the map.
const cleanupEvery = 5 * time.Minute

// RateLimiter tracks request times per client IP in a sliding window
type RateLimiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	limit       int
	window      time.Duration
	now         func() time.Time
	lastCleanup time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records a request from ip and reports whether it is within the limit.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) >= cleanupEvery {
		rl.cleanup(now)
		rl.lastCleanup = now
	}
	cutoff := now.Add(-rl.window)

	valid := rl.requests[ip][:0]
	for _, t := range rl.requests[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

// Cleanup forgets IPs with no request in the last two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanup(rl.now())
}

func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.window * 2)
	for ip, requests := range rl.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(rl.requests, ip)
		}
	}
}

// RateLimit limits requests per client IP. Idle IPs are pruned by Allow
// itself, so no background goroutine outlives the handler.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return NewRateLimiter(limit, window).Middleware
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !rl.Allow(ip) {
			slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfter(rl.window))
			http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UploadLimit caps concurrent uploads per API key. It must run after
// RequireAPIKey.
func UploadLimit(l limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ctxkeys.APIKey(r.Context())

			err := l.Acquire(r.Context(), key)
			if errors.Is(err, limiter.ErrLimitReached) {
				w.Header().Set("Connection", "close")
				http.Error(w, "Too many concurrent uploads", http.StatusTooManyRequests)
				return
			}
			if err != nil {
				// fail open, the limiter backend is optional
				slog.Warn("upload limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			defer l.Release(context.WithoutCancel(r.Context()), key)

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// getClientIP extracts the client IP. Forwarding headers are honored only
// when the peer is a loopback or private address, i.e. a local reverse proxy.
// X-Forwarded-For is read right to left, skipping further trusted hops.
func getClientIP(r *http.Request) string {
	peer := remoteIP(r.RemoteAddr)
	if !trustedProxy(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !trustedProxy(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return peer
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate()
}

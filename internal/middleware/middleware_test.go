package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/ctxkeys"
	"github.com/Specifix5/mikushare/internal/limiter"
)

type stubKeys map[string]bool

func (s stubKeys) KeyIsValid(_ context.Context, key string) (bool, error) {
	if key == "broken" {
		return false, errors.New("db down")
	}
	return s[key], nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ctxkeys.APIKey(r.Context())))
}

func TestRequireAPIKey(t *testing.T) {
	h := Route(okHandler, RequireAPIKey(stubKeys{"alice_abc": true}))

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"unknown key", "?key=nope", http.StatusUnauthorized},
		{"store failure", "?key=broken", http.StatusInternalServerError},
		{"valid key", "?key=alice_abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload"+tt.query, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "alice_abc", rec.Body.String())
			} else {
				assert.Equal(t, "close", rec.Header().Get("Connection"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/upload", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))
	assert.True(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(3 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.requests)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/qrcode", nil)
	req.RemoteAddr = "10.0.0.2:40000"
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(okHandler))

	for i, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodGet, "/qrcode", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "rotating %s must not reset the limit", spoofed)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct peer", "203.0.113.7:5000", "", "", "203.0.113.7"},
		{"public peer headers ignored", "203.0.113.7:5000", "1.1.1.1", "2.2.2.2", "203.0.113.7"},
		{"proxy xff", "127.0.0.1:5000", "198.51.100.4", "", "198.51.100.4"},
		{"proxy xff rightmost untrusted", "10.0.0.2:5000", "1.1.1.1, 198.51.100.4, 10.0.0.9", "", "198.51.100.4"},
		{"proxy xff all private", "10.0.0.2:5000", "192.168.1.5, 10.0.0.9", "", "192.168.1.5"},
		{"proxy real ip", "[::1]:5000", "", "198.51.100.4", "198.51.100.4"},
		{"proxy no headers", "192.168.0.3:5000", "", "", "192.168.0.3"},
		{"ipv6 peer", "[2001:db8::1]:443", "1.1.1.1", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRateLimiterPrunesIdleIPsOnAllow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }

	for i := range 50 {
		rl.Allow("10.1.0." + strconv.Itoa(i))
	}
	require.Len(t, rl.requests, 50)

	now = now.Add(cleanupEvery)
	assert.True(t, rl.Allow("10.2.0.1"))
	assert.Len(t, rl.requests, 1)
	assert.Contains(t, rl.requests, "10.2.0.1")
}

// releaseRecorder records the context error seen by Release.
type releaseRecorder struct {
	released   bool
	releaseErr error
}

func (l *releaseRecorder) Acquire(context.Context, string) error { return nil }

func (l *releaseRecorder) Release(ctx context.Context, _ string) {
	l.released = true
	l.releaseErr = ctx.Err()
}

func TestUploadLimitReleasesAfterClientDisconnect(t *testing.T) {
	l := &releaseRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}), RequireAPIKey(stubKeys{"k": true}), UploadLimit(l))

	req := httptest.NewRequest(http.MethodPost, "/upload?key=k", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, l.released)
	assert.NoError(t, l.releaseErr, "release must not inherit the cancelled request context")
}

func TestUploadLimit(t *testing.T) {
	l := limiter.NewMemoryLimiter(1)
	inside := make(chan struct{})
	release := make(chan struct{})

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inside)
		<-release
	}), RequireAPIKey(stubKeys{"k": true}), UploadLimit(l))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/upload?key=k", nil))
	}()
	<-inside

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload?key=k", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	close(release)
	<-done
	assert.Zero(t, l.Current("k"), "slot is released after the request")
}

func TestRequestLoggingCapturesStatus(t *testing.T) {
	h := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNonceAndSecurityHeaders(t *testing.T) {
	var templNonce string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		templNonce = templ.GetNonce(r.Context())
	}), NonceMiddleware, SecurityHeaders)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, templNonce)
	csp := rec.Header().Get("Content-Security-Policy")
	assert.True(t, strings.Contains(csp, "'nonce-"+templNonce+"'"), csp)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestConfigIsSanitized(t *testing.T) {
	cfg := &config.Config{BaseURL: "https://share.example", DBConnection: "postgres://secret", S3SecretKey: "shh"}

	var got *config.Config
	h := Config(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ctxkeys.Config(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Equal(t, "https://share.example", got.BaseURL)
	assert.Empty(t, got.DBConnection)
	assert.Empty(t, got.S3SecretKey)
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Specifix5/mikushare/internal/ctxkeys"
)

// KeyChecker reports whether an upload key belongs to a live user.
type KeyChecker interface {
	KeyIsValid(ctx context.Context, key string) (bool, error)
}

// RequireAPIKey rejects requests whose ?key= is missing, unknown or expired.
// The connection is closed on rejection so a large body is not drained.
func RequireAPIKey(keys KeyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Query().Get("key")

			ok, err := keys.KeyIsValid(r.Context(), key)
			if err != nil {
				slog.Error("failed to check api key", "error", err)
				w.Header().Set("Connection", "close")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !ok {
				slog.Warn("unauthorized upload", "ip", getClientIP(r))
				w.Header().Set("Connection", "close")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := ctxkeys.WithAPIKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middleware

import (
	"net/http"

	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/ctxkeys"
)

// Config puts the sanitized config in the request context for templates.
// Database credentials and storage secrets are never included.
func Config(cfg *config.Config) func(http.Handler) http.Handler {
	public := cfg.Sanitized()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithConfig(r.Context(), public)))
		})
	}
}

package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
)

// nonceKey is separate from templ's key so SecurityHeaders can read it too
type nonceKey struct{}

// NonceMiddleware stores a fresh CSP nonce in the context, readable by
// templates through templ.GetNonce and by SecurityHeaders through GetNonce.
func NonceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := generateNonce()
		if err != nil {
			slog.Warn("failed to generate nonce", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		ctx := templ.WithNonce(r.Context(), nonce)
		ctx = context.WithValue(ctx, nonceKey{}, nonce)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetNonce(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey{}).(string)
	return nonce
}

// 16 bytes, base64 encoded
func generateNonce() (string, error) {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// SecurityHeaders sets a CSP that only allows inline styles carrying the
// request nonce. Images may come from anywhere since blobs can live on S3.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-Frame-Options", "DENY")

		style := "'self'"
		if nonce := GetNonce(r.Context()); nonce != "" {
			style = fmt.Sprintf("'self' 'nonce-%s'", nonce)
		}
		h.Set("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self'; img-src * data:; media-src *; style-src %s; script-src 'none'; frame-ancestors 'none'",
			style,
		))

		next.ServeHTTP(w, r)
	})
}

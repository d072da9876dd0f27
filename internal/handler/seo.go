package handler

import (
	"fmt"
	"net/http"
	"strings"
)

type SEOHandler struct {
	robots []byte
}

// NewSEOHandler builds robots.txt once. Share links stay crawlable so link
// previews work; raw blobs and the upload endpoint do not.
func NewSEOHandler(baseURL string) *SEOHandler {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /upload\n")
	b.WriteString("Disallow: /uploads/\n")
	b.WriteString("Disallow: /qrcode\n")
	fmt.Fprintf(&b, "Host: %s\n", strings.TrimSuffix(baseURL, "/"))

	return &SEOHandler{robots: []byte(b.String())}
}

// Robots serves the robots.txt file
func (h *SEOHandler) Robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", cacheTemporary)
	w.Write(h.robots)
}

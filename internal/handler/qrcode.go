package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Specifix5/mikushare/internal/service"
)

type QRCodeHandler struct {
	qrService *service.QRService
}

func NewQRCodeHandler(qrService *service.QRService) *QRCodeHandler {
	return &QRCodeHandler{
		qrService: qrService,
	}
}

// QRCode handles GET /qrcode?text=&scale=. Scale defaults to 1.
func (h *QRCodeHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scale := 1
	if raw := q.Get("scale"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			scale = n
		}
	}

	svg, err := h.qrService.SVG(service.QRRequest{
		Text:  strings.TrimSpace(q.Get("text")),
		Scale: scale,
	})
	if err != nil {
		slog.Debug("rejected qr code request", "error", err)
		http.Error(w, "Bad Request, text must be between 1 and 512 chars and scale at most 32", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	w.Header().Set("Cache-Control", cachePermanent)
	_, err = w.Write(svg)
	if err != nil {
		slog.Debug("failed to write qr code", "error", err)
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Specifix5/mikushare/internal/service"
	"github.com/Specifix5/mikushare/internal/ui"
)

type HomeHandler struct {
	pageService *service.PageService
}

func NewHomeHandler(pageService *service.PageService) *HomeHandler {
	return &HomeHandler{
		pageService: pageService,
	}
}

func (h *HomeHandler) HomePage(w http.ResponseWriter, r *http.Request) {
	page := h.pageService.Page("home")
	if page == nil {
		slog.Error("home page not loaded")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	ui.Render(w, r, ui.Home(page))
}

func (h *HomeHandler) NotFoundPage(w http.ResponseWriter, r *http.Request) {
	notFound(w, r)
}

type HealthHandler struct {
	ping func(ctx context.Context) error
}

// NewHealthHandler reports healthy while ping succeeds.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	err := h.ping(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package routes

import (
	"net/http"
	"time"

	"github.com/Specifix5/mikushare/internal/app"
	"github.com/Specifix5/mikushare/internal/handler"
	"github.com/Specifix5/mikushare/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	home := handler.NewHomeHandler(app.PageService)
	health := handler.NewHealthHandler(app.Ping)
	upload := handler.NewUploadHandler(app.FileService, app.Cfg)
	file := handler.NewFileHandler(app.FileService, app.Cfg)
	qr := handler.NewQRCodeHandler(app.QRService)
	seo := handler.NewSEOHandler(app.Cfg.BaseURL)

	mux := http.NewServeMux()

	// Home
	mux.HandleFunc("GET /{$}", home.HomePage)
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /robots.txt", seo.Robots)

	// Upload (key in query string)
	mux.Handle("OPTIONS /upload", middleware.CORS(http.NotFoundHandler()))
	mux.Handle("POST /upload", middleware.Route(upload.Upload,
		middleware.CORS,
		middleware.RateLimit(60, time.Minute),
		middleware.RequireAPIKey(app.UserService),
		middleware.UploadLimit(app.Limiter),
	))

	// QR codes
	mux.Handle("GET /qrcode", middleware.Route(qr.QRCode, middleware.RateLimit(120, time.Minute)))

	// Blobs
	if app.Cfg.ServeUploads {
		mux.HandleFunc("GET /uploads/{name}", file.ServeUpload(false))
		mux.HandleFunc("GET /uploads/temp/{name}", file.ServeUpload(true))
	}

	// Share links
	mux.HandleFunc("GET /{id}", file.Get)

	// 404
	mux.HandleFunc("/{path...}", home.NotFoundPage)

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.Config(app.Cfg),
		middleware.NonceMiddleware, // must be before SecurityHeaders
		middleware.SecurityHeaders,
	)
}

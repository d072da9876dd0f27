package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/ctxkeys"
	"github.com/Specifix5/mikushare/internal/service"
	"github.com/Specifix5/mikushare/internal/validation"
)

// multipartOverhead covers boundaries and part headers on top of the file itself
const multipartOverhead = 1 << 20

// Parts above this are spooled to a temp file by mime/multipart
const maxMemory = 32 << 20

type UploadResponse struct {
	Key       string     `json:"key"`
	URL       string     `json:"url"`
	Filename  string     `json:"filename"`
	IsTemp    bool       `json:"isTemp"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type UploadHandler struct {
	fileService *service.FileService
	cfg         *config.Config
}

func NewUploadHandler(fileService *service.FileService, cfg *config.Config) *UploadHandler {
	return &UploadHandler{
		fileService: fileService,
		cfg:         cfg,
	}
}

// Upload handles POST /upload. RequireAPIKey has already accepted the key.
// The whole body is parsed before anything is stored, so an aborted request
// never leaves a row behind.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := max(h.cfg.MaxFileSize, h.cfg.MaxTempFileSize) + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	err := r.ParseMultipartForm(maxMemory)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		removeErr := r.MultipartForm.RemoveAll()
		if removeErr != nil {
			slog.Warn("failed to remove multipart temp files", "error", removeErr)
		}
	}()

	ttl, err := validation.ParseTTL(r.FormValue("ttl"), h.cfg.MaxTTLHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error("failed to close file", "error", closeErr)
		}
	}()

	err = validation.CheckSize(header.Size, h.cfg.MaxUploadSize(ttl > 0))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	ext := validation.Extension(header.Filename)

	uploaded, err := h.fileService.Upload(r.Context(), service.UploadInput{
		APIKey:       ctxkeys.APIKey(r.Context()),
		OriginalName: header.Filename,
		Ext:          ext,
		Size:         header.Size,
		TTL:          ttl,
		Body:         file,
	})
	if err != nil {
		slog.Error("upload failed", "error", err, "original_name", header.Filename, "size", header.Size)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Key:       uploaded.Key,
		URL:       h.fileService.ShareURL(uploaded.Key),
		Filename:  uploaded.Filename,
		IsTemp:    uploaded.IsTemp(),
		ExpiresAt: uploaded.ExpiresAt,
	})
}

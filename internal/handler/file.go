package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/service"
	"github.com/Specifix5/mikushare/internal/storage"
	"github.com/Specifix5/mikushare/internal/ui"
	"github.com/Specifix5/mikushare/internal/useragent"
)

const (
	cachePermanent = "public, max-age=31536000, immutable"
	cacheTemporary = "public, max-age=300"
)

type FileHandler struct {
	fileService *service.FileService
	cfg         *config.Config
}

func NewFileHandler(fileService *service.FileService, cfg *config.Config) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		cfg:         cfg,
	}
}

// Get handles GET /{id}: a preview card for chat crawlers, otherwise a
// redirect to the blob or the blob itself depending on SHOULD_REDIRECT.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")

	file, err := h.fileService.Resolve(r.Context(), key)
	if errors.Is(err, repository.ErrFileNotFound) {
		notFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to resolve file", "error", err, "key", key)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	mimeType := contentType(file.Filename)

	if strings.HasPrefix(mimeType, "image/") && useragent.IsCrawler(r.UserAgent()) {
		h.preview(w, r, file, mimeType)
		return
	}

	setCacheControl(w, file)

	if !h.cfg.ShouldRedirect {
		h.stream(w, r, file, mimeType)
		return
	}

	blobURL, err := h.fileService.URL(r.Context(), file)
	if err != nil {
		slog.Error("failed to build blob url", "error", err, "key", key)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, blobURL, http.StatusFound)
}

// ServeUpload serves a blob by its stored filename under /uploads/ or
// /uploads/temp/. Only blobs with a live metadata row are served.
func (h *FileHandler) ServeUpload(temp bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if _, err := storage.CleanPath(name); err != nil || strings.Contains(name, "/") {
			notFound(w, r)
			return
		}

		file, err := h.fileService.ByFilename(r.Context(), name)
		if errors.Is(err, repository.ErrFileNotFound) || (err == nil && file.IsTemp() != temp) {
			notFound(w, r)
			return
		}
		if err != nil {
			slog.Error("failed to resolve upload", "error", err, "filename", name)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		setCacheControl(w, file)
		h.stream(w, r, file, contentType(file.Filename))
	}
}

func (h *FileHandler) preview(w http.ResponseWriter, r *http.Request, file *model.File, mimeType string) {
	blobURL, err := h.fileService.URL(r.Context(), file)
	if err != nil {
		slog.Error("failed to build blob url", "error", err, "key", file.Key)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	title := file.OriginalName
	if title == "" {
		title = file.Filename
	}

	w.Header().Set("Cache-Control", cacheTemporary)
	ui.Render(w, r, ui.PreviewCard(ui.Preview{
		Title:    title,
		ShareURL: h.fileService.ShareURL(file.Key),
		ImageURL: blobURL,
		MIMEType: mimeType,
	}))
}

func (h *FileHandler) stream(w http.ResponseWriter, r *http.Request, file *model.File, mimeType string) {
	blob, err := h.fileService.Open(r.Context(), file)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Warn("blob missing for file", "key", file.Key, "path", file.StoragePath())
		w.Header().Del("Cache-Control")
		notFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to open blob", "error", err, "key", file.Key)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer func() {
		closeErr := blob.Close()
		if closeErr != nil {
			slog.Error("failed to close blob", "error", closeErr, "key", file.Key)
		}
	}()

	rs, seekable := blob.(io.ReadSeeker)
	if seekable && mimeType == octetStream {
		mimeType = sniff(rs, mimeType)
	}

	w.Header().Set("Content-Type", mimeType)
	if file.OriginalName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.OriginalName}))
	}

	if seekable {
		http.ServeContent(w, r, file.Filename, file.CreatedAt, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	_, err = io.Copy(w, blob)
	if err != nil {
		slog.Debug("blob copy interrupted", "error", err, "key", file.Key)
	}
}

func setCacheControl(w http.ResponseWriter, file *model.File) {
	if file.IsTemp() {
		w.Header().Set("Cache-Control", cacheTemporary)
		return
	}
	w.Header().Set("Cache-Control", cachePermanent)
}

const octetStream = "application/octet-stream"

// contentType maps the stored extension to a MIME type.
func contentType(filename string) string {
	mimeType := mime.TypeByExtension(path.Ext(filename))
	if mimeType == "" {
		return octetStream
	}
	return mimeType
}

// sniff detects the type of an unknown extension from the blob header and
// rewinds rs. It returns fallback when detection or the rewind fails.
func sniff(rs io.ReadSeeker, fallback string) string {
	detected, err := mimetype.DetectReader(rs)
	_, seekErr := rs.Seek(0, io.SeekStart)
	if err != nil || seekErr != nil {
		return fallback
	}
	return detected.String()
}

func notFound(w http.ResponseWriter, r *http.Request) {
	ui.RenderStatus(w, r, http.StatusNotFound, ui.NotFound())
}

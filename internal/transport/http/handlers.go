// Package http provides HTTP handlers and router configuration.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/service/pipeline"
	"github.com/emanuelef/ytstream-api/internal/transport/http/middleware"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
)

// Resolver returns metadata for a validated video URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*domain.VideoMetadata, error)
}

// Downloader prepares and streams downloads.
type Downloader interface {
	PrepareMP4(ctx context.Context, req domain.DownloadRequest) (*pipeline.Delivery, error)
	PrepareMP3(ctx context.Context, req domain.DownloadRequest) (*pipeline.Delivery, error)
	Stream(ctx context.Context, w http.ResponseWriter, d *pipeline.Delivery) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	resolver   Resolver
	downloader Downloader
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(resolver Resolver, downloader Downloader) *Handlers {
	return &Handlers{
		resolver:   resolver,
		downloader: downloader,
	}
}

// HealthHandler handles GET /health and GET /.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, &domain.HealthResponse{Status: "ok"})
}

// InfoHandler handles GET /api/info?url=.
func (h *Handlers) InfoHandler(w http.ResponseWriter, r *http.Request) {
	url := middleware.VideoURL(r.Context())

	md, err := h.resolver.Resolve(r.Context(), url)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, md)
}

// DownloadMP4Handler handles GET /api/download/mp4?url=&itag=.
func (h *Handlers) DownloadMP4Handler(w http.ResponseWriter, r *http.Request) {
	req := domain.DownloadRequest{
		SourceURL: middleware.VideoURL(r.Context()),
		FormatID:  r.URL.Query().Get("itag"),
	}

	d, err := h.downloader.PrepareMP4(r.Context(), req)
	if err != nil {
		slog.Warn("MP4 download rejected", "url", req.SourceURL, "itag", req.FormatID, "kind", domain.KindOf(err), "error", err)
		respond.DomainError(w, err)
		return
	}

	h.stream(w, r, d)
}

// DownloadMP3Handler handles GET /api/download/mp3?url=&abr=.
func (h *Handlers) DownloadMP3Handler(w http.ResponseWriter, r *http.Request) {
	req := domain.DownloadRequest{
		SourceURL:    middleware.VideoURL(r.Context()),
		AudioBitrate: r.URL.Query().Get("abr"),
	}

	d, err := h.downloader.PrepareMP3(r.Context(), req)
	if err != nil {
		slog.Warn("MP3 download rejected", "url", req.SourceURL, "abr", req.AudioBitrate, "kind", domain.KindOf(err), "error", err)
		respond.DomainError(w, err)
		return
	}

	h.stream(w, r, d)
}

// stream writes d. Only pre-stream failures come back here; later ones abort the handler.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, d *pipeline.Delivery) {
	if err := h.downloader.Stream(r.Context(), w, d); err != nil {
		respond.DomainError(w, err)
	}
}

// NotFoundHandler answers unmatched routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusNotFound, domain.MsgNotFound, domain.KindNotFound)
}

// MethodNotAllowedHandler answers known routes called with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusMethodNotAllowed, domain.MsgMethodNotAllowed, domain.KindMethodNotAllowed)
}

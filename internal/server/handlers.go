// Package server provides the HTTP surface of the upload page.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"docqa/internal/core"
	"docqa/internal/history"
	"docqa/internal/page"
	"docqa/internal/pdfinfo"
	"docqa/internal/session"
	"docqa/internal/storage"
	"docqa/internal/upload"
)

const defaultUploadsLimit = 20

// Handler holds the HTTP handlers
type Handler struct {
	sessions    *session.Manager
	history     history.Reader
	storage     storage.Storage
	maxFileSize int64
}

// NewHandler creates the handlers. history and store may be nil.
func NewHandler(sessions *session.Manager, reader history.Reader, store storage.Storage, maxFileSize int64) *Handler {
	return &Handler{
		sessions:    sessions,
		history:     reader,
		storage:     store,
		maxFileSize: maxFileSize,
	}
}

// sessionResponse is the JSON form of the page state.
type sessionResponse struct {
	page.View
	Phase  upload.Phase   `json:"phase"`
	Result map[string]any `json:"result,omitempty"`
}

// Index handles GET /
func (h *Handler) Index(c echo.Context) error {
	entry := sessionFrom(c)
	view := entry.Shell.View(c.Request().Context(), entry.Widget)
	return c.Render(http.StatusOK, "page", view)
}

// Select handles POST /select. A request without a file clears the slot.
func (h *Handler) Select(c echo.Context) error {
	entry := sessionFrom(c)
	ctx := c.Request().Context()

	fh, err := c.FormFile(upload.FieldName)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		entry.Widget.Select(nil)
	case err != nil:
		return core.NewInvalidRequestError("invalid multipart form: " + err.Error())
	case fh.Filename == "" && fh.Size == 0:
		entry.Widget.Select(nil)
	default:
		file, err := h.readSelected(fh)
		if err != nil {
			return err
		}
		entry.Widget.Select(file)
		slog.Debug("file selected",
			"session_id", entry.ID,
			"filename", file.Name,
			"size", file.Size(),
			"pages", file.Pages,
		)
	}

	h.persist(ctx, entry)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) readSelected(fh *multipart.FileHeader) (*core.SelectedFile, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return nil, core.NewPayloadTooLargeError(fmt.Sprintf("file exceeds the %d byte limit", h.maxFileSize))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, core.NewInvalidRequestError("cannot read file: " + err.Error())
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxFileSize > 0 {
		r = io.LimitReader(f, h.maxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, core.NewInvalidRequestError("cannot read file: " + err.Error())
	}
	if h.maxFileSize > 0 && int64(len(data)) > h.maxFileSize {
		return nil, core.NewPayloadTooLargeError(fmt.Sprintf("file exceeds the %d byte limit", h.maxFileSize))
	}

	file := &core.SelectedFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}
	if file.ContentType == "" && pdfinfo.LooksLikePDF(file.Name, data) {
		file.ContentType = "application/pdf"
	}
	// Page count is informational; the document API decides what it accepts.
	if pages, err := pdfinfo.PageCount(data); err == nil {
		file.Pages = pages
	}
	return file, nil
}

// Upload handles POST /upload.
func (h *Handler) Upload(c echo.Context) error {
	entry := sessionFrom(c)
	// The attempt outlives a dropped client so its outcome lands in the session.
	ctx := context.WithoutCancel(c.Request().Context())

	if !entry.Widget.Submit(ctx) {
		slog.Debug("upload ignored", "session_id", entry.ID, "phase", entry.Widget.Phase())
	}

	h.persist(ctx, entry)
	return c.Redirect(http.StatusSeeOther, "/")
}

// Session handles GET /api/session
func (h *Handler) Session(c echo.Context) error {
	entry := sessionFrom(c)
	view := entry.Shell.View(c.Request().Context(), entry.Widget)
	return c.JSON(http.StatusOK, sessionResponse{
		View:   view,
		Phase:  entry.Widget.Phase(),
		Result: view.ResultFields(),
	})
}

// Uploads handles GET /api/uploads?limit=N
func (h *Handler) Uploads(c echo.Context) error {
	if h.history == nil {
		return core.NewUnavailableError("upload history is disabled")
	}

	limit := defaultUploadsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > history.MaxRecentLimit {
			return core.NewInvalidRequestError(fmt.Sprintf("limit must be an integer between 1 and %d", history.MaxRecentLimit))
		}
		limit = n
	}

	entries, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		slog.Error("failed to read upload history", "error", err)
		return core.NewInternalError("failed to read upload history")
	}
	return c.JSON(http.StatusOK, map[string]any{"object": "list", "data": entries})
}

// UploadsSummary handles GET /api/uploads/summary
func (h *Handler) UploadsSummary(c echo.Context) error {
	if h.history == nil {
		return core.NewUnavailableError("upload history is disabled")
	}
	sum, err := h.history.Summary(c.Request().Context())
	if err != nil {
		slog.Error("failed to read upload summary", "error", err)
		return core.NewInternalError("failed to read upload summary")
	}
	return c.JSON(http.StatusOK, sum)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"storage": err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) persist(ctx context.Context, entry *session.Entry) {
	if err := h.sessions.Persist(ctx, entry); err != nil {
		slog.Warn("failed to persist session", "session_id", entry.ID, "error", err)
	}
}

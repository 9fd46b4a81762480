package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"tempshare/internal/server/metadata"
	"tempshare/internal/server/service"
)

// HealthChecker reports the health of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the file API.
type Handler struct {
	svc *service.FileService
	db  HealthChecker
}

// NewHandler creates a new handler. db may be nil when metadata is not
// kept in a database.
func NewHandler(svc *service.FileService, db HealthChecker) *Handler {
	return &Handler{svc: svc, db: db}
}

// HandleList handles GET /api/files.
// Expired files are swept before the list is returned.
func (h *Handler) HandleList(c echo.Context) error {
	files, err := h.svc.List(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	if files == nil {
		files = []metadata.FileRecord{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"files":   files,
	})
}

// HandleUpload handles POST /api/files.
// Streams a multipart body with one or more "file" parts. A "permanent"
// field sent before the files marks them permanent.
func (h *Handler) HandleUpload(c echo.Context) error {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "expected a multipart/form-data body",
		})
	}

	// The whole body must arrive within the upload timeout. A read that
	// hits the deadline fails the save with ErrUploadTimeout.
	if timeout := h.svc.UploadTimeout(); timeout > 0 {
		rc := http.NewResponseController(c.Response().Writer)
		if err := rc.SetReadDeadline(time.Now().Add(timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.Warn("failed to set upload read deadline", "error", err)
		}
	}

	files, err := h.svc.SaveMultipart(c.Request().Context(), mr)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"file":    files[0],
		"files":   files,
	})
}

// HandleInfo handles GET /api/info/:id.
// Returns file metadata without serving the content.
func (h *Handler) HandleInfo(c echo.Context) error {
	file, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"file":    file,
	})
}

// HandleDownload handles GET /api/files/:id.
// Serves the file as an attachment.
func (h *Handler) HandleDownload(c echo.Context) error {
	return h.serveContent(c, "attachment")
}

// HandleEmbed handles GET /api/files/:id/*.
// Serves the file inline so it can be embedded; the trailing path only
// carries a filename for the benefit of clients that sniff extensions.
func (h *Handler) HandleEmbed(c echo.Context) error {
	return h.serveContent(c, "inline")
}

func (h *Handler) serveContent(c echo.Context, disposition string) error {
	file, content, err := h.svc.FetchContent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer content.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{
		"filename": file.OriginalName,
	}))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(file.SizeBytes, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	if disposition == "inline" {
		header.Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	return c.Stream(http.StatusOK, file.MimeType, content)
}

// HandleDelete handles DELETE /api/files/:id.
func (h *Handler) HandleDelete(c echo.Context) error {
	deleted, err := h.svc.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	if !deleted {
		return mapServiceError(c, service.ErrNotFound)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandlePermanent handles PATCH /api/files/:id/permanent.
// The body must be {"permanent": true|false}.
func (h *Handler) HandlePermanent(c echo.Context) error {
	var body struct {
		Permanent json.RawMessage `json:"permanent"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return invalidPermanent(c)
	}

	var permanent bool
	switch string(body.Permanent) {
	case "true":
		permanent = true
	case "false":
		permanent = false
	default:
		return invalidPermanent(c)
	}

	file, err := h.svc.SetPermanent(c.Request().Context(), c.Param("id"), permanent)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"file":    file,
	})
}

func invalidPermanent(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"success": false,
		"error":   "Invalid permanent value",
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "not configured"

	if h.db != nil {
		dbStatus = "connected"
		if err := h.db.HealthCheck(c.Request().Context()); err != nil {
			status = "degraded"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":            true,
		"total_files":        stats.TotalFiles,
		"permanent_files":    stats.PermanentFiles,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanize.IBytes(uint64(stats.StorageUsed)),
		"expiry_window":      h.svc.ExpiryWindow().String(),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	var (
		uploadErr *service.UploadError
		storeErr  *service.StoreError
	)

	switch {
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, "File not found")
	case errors.Is(err, service.ErrNoFile):
		return fail(c, http.StatusBadRequest, "No file provided")
	case errors.Is(err, service.ErrFileTooLarge):
		return fail(c, http.StatusRequestEntityTooLarge, "File exceeds maximum allowed size")
	case errors.Is(err, service.ErrUploadTimeout):
		return fail(c, http.StatusRequestTimeout, "Upload took too long")
	case errors.As(err, &uploadErr):
		return fail(c, http.StatusBadRequest, "Failed to upload file")
	case errors.As(err, &storeErr):
		slog.Error("metadata store failure", "path", c.Path(), "error", err)
		return fail(c, http.StatusInternalServerError, "Failed to access file metadata")
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"error":   msg,
	})
}

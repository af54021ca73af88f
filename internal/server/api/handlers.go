package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"fileshare/internal/server/records"
	"fileshare/internal/server/service"

	"github.com/labstack/echo/v4"
)

// maxRequestSize bounds the whole multipart body: the file plus the form envelope.
const maxRequestSize = service.MaxFileSize + 1<<20

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Success  bool     `json:"success"`
	URL      string   `json:"url"`
	FileInfo FileInfo `json:"fileInfo"`
}

// FileInfo is the metadata subset echoed back to the uploader.
type FileInfo struct {
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
}

// FileDetails is returned for metadata queries.
type FileDetails struct {
	OriginalName  string    `json:"originalName"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimetype"`
	UploadDate    time.Time `json:"uploadDate"`
	DownloadCount int64     `json:"downloadCount"`
}

// Handler contains the HTTP handlers for the file-sharing API.
type Handler struct {
	svc     *service.FileService
	baseURL string
}

// NewHandler creates a new handler. An empty baseURL means links are built
// from the scheme and host of each upload request.
func NewHandler(svc *service.FileService, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// HandleUpload handles POST /upload.
// Accepts a multipart form with exactly one file in the "file" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	req := c.Request()
	if req.ContentLength > maxRequestSize {
		return mapServiceError(c, service.ErrFileTooLarge)
	}
	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxRequestSize)

	form, err := c.MultipartForm()
	if err != nil {
		if isBodyTooLarge(err) {
			return mapServiceError(c, service.ErrFileTooLarge)
		}
		slog.Debug("malformed upload form", "error", err)
		return mapServiceError(c, service.ErrNoFile)
	}
	defer form.RemoveAll()

	var fileCount int
	for _, headers := range form.File {
		fileCount += len(headers)
	}
	files := form.File["file"]
	switch {
	case len(files) == 0:
		return mapServiceError(c, service.ErrNoFile)
	case fileCount > 1:
		return mapServiceError(c, service.ErrTooManyFiles)
	}
	fileHeader := files[0]

	src, err := fileHeader.Open()
	if err != nil {
		return internalError(c, fmt.Errorf("failed to open uploaded file: %w", err))
	}
	defer src.Close()

	rec, err := h.svc.Ingest(req.Context(), service.IngestRequest{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get(echo.HeaderContentType),
		Size:     fileHeader.Size,
		Body:     src,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Success: true,
		URL:     h.fileURL(c, rec.ID),
		FileInfo: FileInfo{
			OriginalName: rec.OriginalName,
			Size:         rec.Size,
			MimeType:     rec.MimeType,
		},
	})
}

// HandleDownload handles GET /file/:id.
// Streams the file inline under its original name and counts the download.
func (h *Handler) HandleDownload(c echo.Context) error {
	dl, err := h.svc.Retrieve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer dl.Content.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, contentDisposition(dl.Record.OriginalName))
	header.Set(echo.HeaderContentType, dl.Record.MimeType)
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	if dl.Record.Checksum != "" {
		header.Set("ETag", `"`+dl.Record.Checksum+`"`)
	}

	http.ServeContent(c.Response(), c.Request(), "", dl.Record.UploadedAt, dl.Content)
	return nil
}

// HandleInfo handles GET /file/:id/info.
// Returns file metadata without serving the file or counting a download.
func (h *Handler) HandleInfo(c echo.Context) error {
	rec, err := h.svc.Describe(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, newFileDetails(rec))
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including the record store.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storeStatus := "ok"

	if err := h.svc.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  status,
		"store":   h.svc.StoreName(),
		"records": storeStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_files":        stats.TotalFiles,
		"total_downloads":    stats.TotalDownloads,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

func (h *Handler) fileURL(c echo.Context, id string) string {
	base := h.baseURL
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}
	return base + "/file/" + id
}

func newFileDetails(rec *records.Record) FileDetails {
	return FileDetails{
		OriginalName:  rec.OriginalName,
		Size:          rec.Size,
		MimeType:      rec.MimeType,
		UploadDate:    rec.UploadedAt,
		DownloadCount: rec.DownloadCount,
	}
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "File not found"})
	case errors.Is(err, service.ErrNoFile):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file uploaded"})
	case errors.Is(err, service.ErrTooManyFiles):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Upload exactly one file in the 'file' field"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "File too large. Maximum size is 25MB."})
	case errors.Is(err, service.ErrTypeNotAllowed):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "File type not allowed"})
	default:
		return internalError(c, err)
	}
}

// internalError logs the cause and answers with a generic message.
func internalError(c echo.Context, err error) error {
	slog.Error("request failed",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"error", err,
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// contentDisposition renders an inline disposition, RFC 2231 encoding non-ASCII names.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "inline"
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

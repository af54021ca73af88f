package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"fileshare/internal/server/records"
	"fileshare/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// MaxFileSize is the largest accepted upload, in bytes.
const MaxFileSize int64 = 25 * 1024 * 1024

// Sentinel errors for the service layer.
var (
	ErrNotFound       = errors.New("file not found")
	ErrNoFile         = errors.New("no file uploaded")
	ErrTooManyFiles   = errors.New("exactly one file must be uploaded")
	ErrFileTooLarge   = errors.New("file exceeds maximum allowed size")
	ErrTypeNotAllowed = errors.New("file type not allowed")
)

// allowedTypes are the declared media types accepted on ingest.
var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"video/mp4":       true,
	"audio/mpeg":      true,
	"application/zip": true,
}

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// IsAllowedType reports whether a declared media type may be uploaded.
func IsAllowedType(mimeType string) bool {
	return allowedTypes[normalizeMediaType(mimeType)]
}

// IngestRequest describes one uploaded file as received from the client.
type IngestRequest struct {
	Filename string
	MimeType string
	Size     int64 // declared size, -1 when unknown
	Body     io.Reader
}

// Download is an open stored file together with its record.
// Callers must close Content.
type Download struct {
	Record  records.Record
	Content io.ReadSeekCloser
}

// FileService contains the business logic for ingesting and serving files.
type FileService struct {
	records records.Store
	blobs   storage.Store
	now     func() time.Time
}

// NewFileService creates a new file service.
func NewFileService(recs records.Store, blobs storage.Store) *FileService {
	return &FileService{
		records: recs,
		blobs:   blobs,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates an upload, writes it to storage and registers its record.
// Nothing is left on disk when validation or persistence fails.
func (s *FileService) Ingest(ctx context.Context, req IngestRequest) (*records.Record, error) {
	if req.Body == nil {
		return nil, ErrNoFile
	}

	// 1. Size and type are checked before anything touches the disk
	if req.Size > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	mediaType := normalizeMediaType(req.MimeType)
	if !allowedTypes[mediaType] {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotAllowed, mediaType)
	}

	// 2. Generate the public id and the on-disk name
	id := uuid.NewString()
	storedName := uuid.NewString() + safeExtension(req.Filename)

	// 3. Stream to disk while hashing; read one byte past the limit to detect overflow
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create hasher: %w", err)
	}
	body := io.TeeReader(io.LimitReader(req.Body, MaxFileSize+1), hasher)

	written, err := s.blobs.Save(storedName, body)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if written > MaxFileSize {
		s.discard(storedName)
		return nil, ErrFileTooLarge
	}

	// 4. Register the record only once the bytes are on disk
	rec := records.Record{
		ID:           id,
		OriginalName: displayName(req.Filename),
		StoredName:   storedName,
		Size:         written,
		MimeType:     mediaType,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
		UploadedAt:   s.now(),
	}

	if err := s.records.Put(ctx, rec); err != nil {
		s.discard(storedName)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	slog.Info("file ingested",
		"id", rec.ID,
		"original_name", rec.OriginalName,
		"size", rec.Size,
		"mimetype", rec.MimeType,
	)

	return &rec, nil
}

// Retrieve opens the stored bytes for id and increments its download counter.
func (s *FileService) Retrieve(ctx context.Context, id string) (*Download, error) {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := s.blobs.Open(rec.StoredName)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file for %s: %w", id, err)
	}

	count, err := s.records.IncrementDownloads(ctx, id)
	if err != nil {
		content.Close()
		if errors.Is(err, records.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment download count: %w", err)
	}
	rec.DownloadCount = count

	return &Download{Record: *rec, Content: content}, nil
}

// Describe returns the record for id without touching the counter.
func (s *FileService) Describe(ctx context.Context, id string) (*records.Record, error) {
	return s.lookup(ctx, id)
}

// Stats returns aggregate figures from the record store.
func (s *FileService) Stats(ctx context.Context) (*records.Stats, error) {
	return s.records.Stats(ctx)
}

// StoreName names the record backend in use.
func (s *FileService) StoreName() string {
	return s.records.Name()
}

// HealthCheck pings the record store when it is backed by an external service.
func (s *FileService) HealthCheck(ctx context.Context) error {
	if hc, ok := s.records.(records.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (s *FileService) lookup(ctx context.Context, id string) (*records.Record, error) {
	// Ids are always uuids; anything else cannot exist.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up file %s: %w", id, err)
	}
	return rec, nil
}

func (s *FileService) discard(storedName string) {
	if err := s.blobs.Delete(storedName); err != nil {
		slog.Error("failed to remove stored file", "stored_name", storedName, "error", err)
	}
}

// --- Helpers ---

// normalizeMediaType strips parameters and lower-cases a declared Content-Type.
func normalizeMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mediaType
}

// safeExtension returns the original extension only if it is plain alphanumerics.
func safeExtension(filename string) string {
	ext := filepath.Ext(baseName(filename))
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// displayName strips directory components and limits length.
func displayName(name string) string {
	name = baseName(name)
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}

	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:255-len(ext)], "") + ext
	}

	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}

// baseName normalizes Windows-style separators before taking the last element.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

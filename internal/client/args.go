package client

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// MaxUploadSize mirrors the server limit so oversized files never leave the machine.
const MaxUploadSize = 25 << 20

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

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// LocalFile is a file on disk that passed local validation.
type LocalFile struct {
	Path     string
	Name     string
	Size     int64
	MimeType string
}

// ParseArgs validates the command line: exactly one regular, allowed file
// no larger than MaxUploadSize.
func ParseArgs(args []string) (*LocalFile, error) {
	switch {
	case len(args) == 0:
		return nil, &ValidationError{Arg: "<file>", Cause: "no file provided"}
	case len(args) > 1:
		return nil, &ValidationError{Arg: "<file>", Cause: "exactly one file can be shared at a time"}
	}

	raw := args[0]
	p := filepath.Clean(raw)
	info, err := os.Stat(p)
	if err != nil {
		return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
	}
	if info.IsDir() {
		return nil, &ValidationError{Arg: raw, Cause: "is a directory"}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Arg: raw, Cause: "not a regular file"}
	}
	if info.Size() > MaxUploadSize {
		return nil, &ValidationError{Arg: raw, Cause: "file too large, maximum size is 25MB"}
	}

	mimeType, err := DetectType(p)
	if err != nil {
		return nil, &ValidationError{Arg: raw, Cause: "not readable"}
	}
	if !allowedTypes[mimeType] {
		return nil, &ValidationError{Arg: raw, Cause: fmt.Sprintf("file type %s not allowed", mimeType)}
	}

	return &LocalFile{
		Path:     p,
		Name:     filepath.Base(p),
		Size:     info.Size(),
		MimeType: mimeType,
	}, nil
}

// DetectType guesses the media type from the extension, falling back to
// content sniffing. Parameters such as charset are dropped.
func DetectType(path string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return stripParams(t), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return stripParams(http.DetectContentType(head[:n])), nil
}

func stripParams(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}

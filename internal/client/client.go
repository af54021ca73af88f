package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

var ErrInvalidReference = errors.New("invalid file reference")

// APIError is a non-200 answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// UploadResult is the server's answer to a successful upload.
type UploadResult struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	FileInfo struct {
		OriginalName string `json:"originalName"`
		Size         int64  `json:"size"`
		MimeType     string `json:"mimetype"`
	} `json:"fileInfo"`
}

// FileDetails is the metadata returned for a shared file.
type FileDetails struct {
	OriginalName  string    `json:"originalName"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimetype"`
	UploadDate    time.Time `json:"uploadDate"`
	DownloadCount int64     `json:"downloadCount"`
}

// ProgressFunc is called as the upload body is written.
type ProgressFunc func(sent, total int64)

// Client talks to a file-sharing server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{},
	}
}

// Upload streams f to the server as a single-part multipart form.
func (c *Client) Upload(ctx context.Context, f *LocalFile, progress ProgressFunc) (*UploadResult, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer src.Close()
		body := io.Reader(src)
		if progress != nil {
			body = &progressReader{r: src, total: f.Size, fn: progress}
		}
		pw.CloseWithError(writeForm(mw, f, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Info fetches metadata for a file. ref is either a bare id, resolved
// against BaseURL, or a full share link.
func (c *Client) Info(ctx context.Context, ref string) (*FileDetails, error) {
	target, err := c.infoURL(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var details FileDetails
	if err := c.do(req, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *Client) infoURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidReference
	}

	u, err := url.Parse(ref)
	if err == nil && u.Scheme != "" && u.Host != "" {
		id, ok := strings.CutPrefix(strings.TrimSuffix(u.Path, "/info"), "/file/")
		if !ok || id == "" || strings.Contains(id, "/") {
			return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
		}
		return u.Scheme + "://" + u.Host + "/file/" + url.PathEscape(id) + "/info", nil
	}

	if strings.Contains(ref, "/") {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	return c.BaseURL + "/file/" + url.PathEscape(ref) + "/info", nil
}

func (c *Client) do(req *http.Request, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func writeForm(mw *multipart.Writer, f *LocalFile, body io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": f.Name,
	}))
	h.Set("Content-Type", f.MimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

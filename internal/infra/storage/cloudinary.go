package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

const (
	// CloudinaryBaseURL is the upload API root
	CloudinaryBaseURL = "https://api.cloudinary.com/v1_1"

	// DefaultUploadTimeout bounds a single upload; videos can be large.
	DefaultUploadTimeout = 5 * time.Minute
)

// Cloudinary uploads assets with an unsigned upload preset. The endpoint is
// chosen by media kind: <base>/<cloud>/image/upload or .../video/upload.
type Cloudinary struct {
	cloud      string
	preset     string
	folder     string
	baseURL    string
	httpClient *http.Client
	clock      application.Clock
}

var _ analysis.Uploader = (*Cloudinary)(nil)

// CloudinaryOption configures the uploader
type CloudinaryOption func(*Cloudinary)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) CloudinaryOption {
	return func(c *Cloudinary) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) CloudinaryOption {
	return func(c *Cloudinary) {
		c.httpClient = client
	}
}

// WithFolder puts every upload under folder
func WithFolder(folder string) CloudinaryOption {
	return func(c *Cloudinary) {
		c.folder = folder
	}
}

// WithClock overrides the upload timestamp source
func WithClock(clock application.Clock) CloudinaryOption {
	return func(c *Cloudinary) {
		c.clock = clock
	}
}

// NewCloudinary creates an uploader for cloud using an unsigned preset.
func NewCloudinary(cloud, preset string, opts ...CloudinaryOption) (*Cloudinary, error) {
	if cloud == "" || preset == "" {
		return nil, fmt.Errorf("cloudinary cloud name and upload preset are required")
	}
	c := &Cloudinary{
		cloud:   cloud,
		preset:  preset,
		baseURL: CloudinaryBaseURL,
		httpClient: &http.Client{
			Timeout:   DefaultUploadTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clock: application.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Upload streams the asset as multipart form data. The file is never held
// in memory as a whole.
func (c *Cloudinary) Upload(ctx context.Context, asset media.Asset) (analysis.UploadResult, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Cause: fmt.Errorf("open %s: %w", asset.Path, err)}
	}
	defer f.Close()

	contentType := asset.ContentType
	if contentType == "" {
		mt, err := mimetype.DetectReader(f)
		if err == nil {
			contentType = mt.String()
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return analysis.UploadResult{}, &analysis.UploadError{Cause: err}
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := asset.Name
	if name == "" {
		name = filepath.Base(asset.Path)
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(mw, f, name, contentType))
	}()

	endpoint := fmt.Sprintf("%s/%s/%s/upload", c.baseURL, c.cloud, resourceType(asset.Kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Status: resp.StatusCode, Cause: err}
	}

	var out cloudinaryResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return analysis.UploadResult{}, &analysis.UploadError{Status: resp.StatusCode, Cause: errors.New(msg)}
	}
	if decodeErr != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if out.SecureURL == "" {
		return analysis.UploadResult{}, &analysis.UploadError{Status: resp.StatusCode, Cause: errors.New("response has no secure_url")}
	}

	return analysis.UploadResult{
		URL:        out.SecureURL,
		AssetID:    asset.ID,
		UploadedAt: c.clock.Now(),
	}, nil
}

func (c *Cloudinary) writeForm(mw *multipart.Writer, src io.Reader, name, contentType string) error {
	if err := mw.WriteField("upload_preset", c.preset); err != nil {
		return err
	}
	if c.folder != "" {
		if err := mw.WriteField("folder", c.folder); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+quoteEscaper.Replace(name)+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// quoteEscaper escapes a MIME quoted-string the way multipart.CreateFormFile
// does. Other bytes, UTF-8 included, pass through untouched.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func resourceType(k media.Kind) string {
	if k == media.KindVideo {
		return "video"
	}
	return "image"
}

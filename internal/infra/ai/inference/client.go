// Package inference talks to the remote media analysis service over HTTP.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Client posts an uploaded media URL with a prompt to <endpoint>/analyze.
// Deadlines come from the caller's context.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ analysis.Client = (*Client)(nil)

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the service rooted at endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("analysis endpoint is required")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type analyzeRequest struct {
	VideoURL string `json:"video_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Prompt   string `json:"prompt"`
}

type analyzeResponse struct {
	Analysis *string `json:"analysis"`
	Error    string  `json:"error,omitempty"`
}

// Analyze returns the raw finding text.
func (c *Client) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (string, error) {
	body := analyzeRequest{Prompt: req.Prompt}
	if req.Kind == media.KindImage {
		body.ImageURL = req.MediaURL
	} else {
		body.VideoURL = req.MediaURL
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureTransport, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureTransport, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureTransport, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureTransport, Status: resp.StatusCode, Cause: err}
	}

	var out analyzeResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &analysis.AnalysisError{Kind: analysis.FailureStatus, Status: resp.StatusCode, Cause: errors.New(msg)}
	}
	if decodeErr != nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureMalformed, Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if out.Analysis == nil {
		return "", &analysis.AnalysisError{Kind: analysis.FailureMalformed, Status: resp.StatusCode, Cause: errors.New(`response has no "analysis" field`)}
	}
	return *out.Analysis, nil
}

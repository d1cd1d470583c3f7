package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o"
)

// Client is a vision-model backend for analysis.Client. Images are attached
// as image parts; videos are passed by URL in the text.
type Client struct {
	*openai.Client
	Model string
}

var _ analysis.Client = (*Client)(nil)

// NewClient builds a client; baseURL may point at any OpenAI-compatible API.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	text := prompt.GetUserPrompt(req.Prompt, req.MediaURL, req.Kind)
	if req.Kind == media.KindImage {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: req.MediaURL, Detail: openai.ImageURLDetailHigh},
			},
		}
	} else {
		user.Content = text
	}

	ccr := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt(req.Kind)},
			user,
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		ccr.MaxCompletionTokens = maxTokens
	} else {
		ccr.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &analysis.AnalysisError{Kind: analysis.FailureMalformed, Cause: errors.New("completion has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &analysis.AnalysisError{Kind: analysis.FailureStatus, Status: apiErr.HTTPStatusCode, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &analysis.AnalysisError{Kind: analysis.FailureStatus, Status: reqErr.HTTPStatusCode, Cause: err}
	}
	return &analysis.AnalysisError{Kind: analysis.FailureTransport, Cause: err}
}

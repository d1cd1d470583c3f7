package analysis

import (
	"context"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// Uploader streams a local asset to object storage. Every call produces a new
// remote copy; callers cache the result per asset.
type Uploader interface {
	Upload(ctx context.Context, asset media.Asset) (UploadResult, error)
}

// Client submits an uploaded media URL with a prompt and returns the raw
// finding text.
type Client interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
}

package analysis

import (
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// UploadResult is the durable remote copy of one asset.
type UploadResult struct {
	URL        string        `json:"url"`
	AssetID    media.AssetID `json:"asset_id"`
	UploadedAt time.Time     `json:"uploaded_at"`
}

// Request carries what the user asked for: which catalog entry and the
// prompt resolved from it.
type Request struct {
	TypeID string `json:"type_id"`
	Prompt string `json:"prompt"`
}

// Result is the current finding of a session. Segments are derived from Raw.
type Result struct {
	Raw         string       `json:"raw"`
	Segments    []Segment    `json:"segments"`
	Upload      UploadResult `json:"upload"`
	Request     Request      `json:"request"`
	Kind        media.Kind   `json:"kind"`
	CompletedAt time.Time    `json:"completed_at"`
}

// AnalyzeRequest is what an inference backend receives.
type AnalyzeRequest struct {
	MediaURL string
	Kind     media.Kind
	Prompt   string
}

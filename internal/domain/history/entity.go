package history

import "time"

// RecordID identifier type
type RecordID string

// Record is one completed analysis kept for auditing and later lookup.
type Record struct {
	ID        RecordID  `json:"id"`
	SessionID string    `json:"session_id"`
	AssetID   string    `json:"asset_id"`
	TypeID    string    `json:"type_id"`
	MediaKind string    `json:"media_kind"`
	MediaURL  string    `json:"media_url"`
	Prompt    string    `json:"prompt"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

package media

import (
	"fmt"
	"strings"
	"time"
)

// AssetID identifies one selection. A new ID is minted every time the user
// picks media, even when the same file is picked twice.
type AssetID string

// Kind enum
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// MaxVideoDuration bounds what the picker accepts for video.
const MaxVideoDuration = 300 * time.Second

// ParseKind accepts "image" or "video" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	}
	return "", fmt.Errorf("unknown media kind: %q", s)
}

// Title returns "Image" or "Video", used in report titles and filenames.
func (k Kind) Title() string {
	switch k {
	case KindImage:
		return "Image"
	case KindVideo:
		return "Video"
	}
	return "Media"
}

// Asset is the local media item held by the active session.
type Asset struct {
	ID          AssetID       `json:"id"`
	Path        string        `json:"path"`
	Name        string        `json:"name"`
	Kind        Kind          `json:"kind"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Duration    time.Duration `json:"duration,omitempty"`
	SelectedAt  time.Time     `json:"selected_at"`
}

// Limits constrains what a selector may return.
type Limits struct {
	MaxDuration time.Duration
	MaxSize     int64
}

// SelectRequest describes one selection attempt. Source is optional; a
// staging selector uses it to locate an already-received file, an
// interactive selector ignores it and asks the user.
type SelectRequest struct {
	Kind   Kind
	Source string
	Limits Limits
}

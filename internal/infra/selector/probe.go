// Package selector implements media.Selector: an interactive terminal picker
// and a staging directory fed by the HTTP surface.
package selector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// Prober reads the duration of a video file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe shells out to ffprobe.
type FFProbe struct {
	Bin string
}

// NewFFProbe returns an error when ffprobe is not on PATH.
func NewFFProbe() (*FFProbe, error) {
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &FFProbe{Bin: bin}, nil
}

func (p *FFProbe) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.Bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get video info: %w", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

var allowedExt = map[media.Kind][]string{
	media.KindVideo: {".mp4", ".mov", ".m4v", ".avi", ".mkv", ".webm"},
	media.KindImage: {".jpg", ".jpeg", ".png", ".heic", ".webp", ".gif"},
}

// AllowedTypes lists the file extensions offered for kind.
func AllowedTypes(kind media.Kind) []string {
	return append([]string(nil), allowedExt[kind]...)
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", media.ErrUnsupportedMedia, fmt.Sprintf(format, args...))
}

// inspect checks path against the requested kind and limits and describes
// it as an asset. ID and selection time are left to the caller.
func inspect(ctx context.Context, path string, req media.SelectRequest, probe Prober) (media.Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return media.Asset{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return media.Asset{}, unsupported("%s is a directory", filepath.Base(path))
	}
	if req.Limits.MaxSize > 0 && info.Size() > req.Limits.MaxSize {
		return media.Asset{}, unsupported("%d bytes exceeds the %d byte limit", info.Size(), req.Limits.MaxSize)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return media.Asset{}, fmt.Errorf("detect media type: %w", err)
	}
	if top, _, _ := strings.Cut(mt.String(), "/"); top != string(req.Kind) {
		return media.Asset{}, unsupported("%s is %s, want %s", filepath.Base(path), mt.String(), req.Kind)
	}

	asset := media.Asset{
		Path:        path,
		Name:        filepath.Base(path),
		Kind:        req.Kind,
		ContentType: mt.String(),
		Size:        info.Size(),
	}
	if req.Kind == media.KindVideo && probe != nil {
		d, err := probe.Duration(ctx, path)
		if err != nil {
			return media.Asset{}, unsupported("cannot read duration: %v", err)
		}
		if req.Limits.MaxDuration > 0 && d > req.Limits.MaxDuration {
			return media.Asset{}, unsupported("video is %s long, limit is %s", d.Round(time.Second), req.Limits.MaxDuration)
		}
		asset.Duration = d
	}
	return asset, nil
}

package selector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
)

// Staged selects media that a remote client already sent. Files are kept
// under Root; a SelectRequest.Source names one of them.
type Staged struct {
	Root  string
	Probe Prober
}

var _ media.Selector = (*Staged)(nil)

func NewStaged(root string, probe Prober) (*Staged, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	return &Staged{Root: abs, Probe: probe}, nil
}

// Stage copies r into the staging directory and returns the name to pass
// as SelectRequest.Source. Bodies over maxSize are rejected.
func (s *Staged) Stage(ctx context.Context, filename string, r io.Reader, maxSize int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name := uuid.NewString() + ext

	f, err := os.OpenFile(filepath.Join(s.Root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", filename, err)
	}
	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxSize > 0 && n > maxSize {
		err = unsupported("upload exceeds the %d byte limit", maxSize)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	logger := xlog.FromContext(ctx)
	logger.Debug().Str("component", "selector").
		Str("file", filename).Str("staged", name).Int64("bytes", n).Msg("media staged")
	return name, nil
}

// Select resolves req.Source inside Root. An empty source is a canceled
// pick; a path escaping Root is refused as a permission error.
func (s *Staged) Select(ctx context.Context, req media.SelectRequest) (media.Asset, error) {
	if strings.TrimSpace(req.Source) == "" {
		return media.Asset{}, media.ErrSelectionCanceled
	}
	path, err := s.resolve(req.Source)
	if err != nil {
		return media.Asset{}, err
	}
	asset, err := inspect(ctx, path, req, s.Probe)
	if errors.Is(err, os.ErrNotExist) {
		return media.Asset{}, fmt.Errorf("%w: %s is not staged", media.ErrUnsupportedMedia, req.Source)
	}
	return asset, err
}

func (s *Staged) resolve(source string) (string, error) {
	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.Root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the staging area", media.ErrPermissionDenied, source)
	}
	return path, nil
}

// Remove deletes a staged file. Unknown names are ignored.
func (s *Staged) Remove(source string) error {
	path, err := s.resolve(source)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

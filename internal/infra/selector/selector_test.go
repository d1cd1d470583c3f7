package selector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	mp4Bytes = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2\x00\x00\x00\x08free")
)

type fixedProbe struct {
	d     time.Duration
	err   error
	calls int
}

func (p *fixedProbe) Duration(context.Context, string) (time.Duration, error) {
	p.calls++
	return p.d, p.err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestStaged_StageAndSelect(t *testing.T) {
	s, err := NewStaged(t.TempDir(), &fixedProbe{d: 42 * time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	name, err := s.Stage(ctx, "Clip.MP4", strings.NewReader(string(mp4Bytes)), 1<<20)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".mp4"))

	asset, err := s.Select(ctx, media.SelectRequest{Kind: media.KindVideo, Source: name,
		Limits: media.Limits{MaxDuration: media.MaxVideoDuration}})
	require.NoError(t, err)
	assert.Equal(t, media.KindVideo, asset.Kind)
	assert.Equal(t, "video/mp4", asset.ContentType)
	assert.Equal(t, 42*time.Second, asset.Duration)
	assert.Equal(t, int64(len(mp4Bytes)), asset.Size)
	assert.Equal(t, filepath.Join(s.Root, name), asset.Path)
	assert.Empty(t, asset.ID)

	require.NoError(t, s.Remove(name))
	assert.NoFileExists(t, asset.Path)
	require.NoError(t, s.Remove(name))
}

func TestStaged_StageRejectsOversize(t *testing.T) {
	s, err := NewStaged(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Stage(context.Background(), "big.png", strings.NewReader(strings.Repeat("x", 64)), 16)
	require.ErrorIs(t, err, media.ErrUnsupportedMedia)

	entries, _ := os.ReadDir(s.Root)
	assert.Empty(t, entries)
}

func TestStaged_SelectOutcomes(t *testing.T) {
	outside := writeFile(t, t.TempDir(), "x.png", pngBytes)

	s, err := NewStaged(t.TempDir(), &fixedProbe{d: 10 * time.Minute})
	require.NoError(t, err)
	writeFile(t, s.Root, "scan.png", pngBytes)
	writeFile(t, s.Root, "clip.mp4", mp4Bytes)

	tests := []struct {
		name string
		req  media.SelectRequest
		want error
	}{
		{"empty source", media.SelectRequest{Kind: media.KindImage}, media.ErrSelectionCanceled},
		{"traversal", media.SelectRequest{Kind: media.KindImage, Source: "../x.png"}, media.ErrPermissionDenied},
		{"absolute outside", media.SelectRequest{Kind: media.KindImage, Source: outside}, media.ErrPermissionDenied},
		{"root itself", media.SelectRequest{Kind: media.KindImage, Source: "."}, media.ErrPermissionDenied},
		{"missing", media.SelectRequest{Kind: media.KindImage, Source: "nope.png"}, media.ErrUnsupportedMedia},
		{"kind mismatch", media.SelectRequest{Kind: media.KindVideo, Source: "scan.png"}, media.ErrUnsupportedMedia},
		{"too long", media.SelectRequest{Kind: media.KindVideo, Source: "clip.mp4",
			Limits: media.Limits{MaxDuration: media.MaxVideoDuration}}, media.ErrUnsupportedMedia},
		{"too large", media.SelectRequest{Kind: media.KindImage, Source: "scan.png",
			Limits: media.Limits{MaxSize: 4}}, media.ErrUnsupportedMedia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Select(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStaged_ImageSkipsProbe(t *testing.T) {
	probe := &fixedProbe{err: errors.New("no ffprobe")}
	s, err := NewStaged(t.TempDir(), probe)
	require.NoError(t, err)
	writeFile(t, s.Root, "scan.png", pngBytes)

	asset, err := s.Select(context.Background(), media.SelectRequest{Kind: media.KindImage, Source: "scan.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", asset.ContentType)
	assert.Zero(t, probe.calls)
}

func newTestTerminal(dir string, allow bool, confirmErr error, pick func() (string, error)) (*Terminal, *int) {
	asked := 0
	term := NewTerminal(dir, nil)
	term.confirm = func(context.Context, media.Kind) (bool, error) {
		asked++
		return allow, confirmErr
	}
	term.pick = func(context.Context, media.Kind, string) (string, error) { return pick() }
	return term, &asked
}

func TestTerminal_PermissionDenied(t *testing.T) {
	picked := false
	term, asked := newTestTerminal(t.TempDir(), false, nil, func() (string, error) {
		picked = true
		return "", nil
	})

	_, err := term.Select(context.Background(), media.SelectRequest{Kind: media.KindImage})
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.False(t, picked)

	_, err = term.Select(context.Background(), media.SelectRequest{Kind: media.KindImage})
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.Equal(t, 2, *asked, "denial is not remembered")
}

func TestTerminal_AbortedPromptIsDenial(t *testing.T) {
	term, _ := newTestTerminal(t.TempDir(), false, huh.ErrUserAborted, func() (string, error) { return "", nil })
	_, err := term.Select(context.Background(), media.SelectRequest{Kind: media.KindImage})
	assert.ErrorIs(t, err, media.ErrPermissionDenied)
}

func TestTerminal_PickerCanceled(t *testing.T) {
	for name, pick := range map[string]func() (string, error){
		"aborted": func() (string, error) { return "", huh.ErrUserAborted },
		"empty":   func() (string, error) { return "", nil },
	} {
		t.Run(name, func(t *testing.T) {
			term, _ := newTestTerminal(t.TempDir(), true, nil, pick)
			_, err := term.Select(context.Background(), media.SelectRequest{Kind: media.KindImage})
			assert.ErrorIs(t, err, media.ErrSelectionCanceled)
		})
	}
}

func TestTerminal_PicksAndRemembersGrant(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lesion.png", pngBytes)
	term, asked := newTestTerminal(dir, true, nil, func() (string, error) { return path, nil })

	for i := 0; i < 2; i++ {
		asset, err := term.Select(context.Background(), media.SelectRequest{Kind: media.KindImage})
		require.NoError(t, err)
		assert.Equal(t, "lesion.png", asset.Name)
		assert.Equal(t, media.KindImage, asset.Kind)
	}
	assert.Equal(t, 1, *asked)
}

func TestAllowedTypes(t *testing.T) {
	assert.Contains(t, AllowedTypes(media.KindVideo), ".mp4")
	assert.Contains(t, AllowedTypes(media.KindImage), ".png")
	assert.NotContains(t, AllowedTypes(media.KindImage), ".mp4")
}

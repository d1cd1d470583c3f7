package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

func writeAsset(t *testing.T, name string, body []byte) media.Asset {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, body, 0o600))
	return media.Asset{ID: "asset-1", Path: p, Name: name, Kind: media.KindVideo, ContentType: "video/mp4"}
}

func TestCloudinaryUpload_Success(t *testing.T) {
	var gotPath, gotPreset, gotFile, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPreset = r.FormValue("upload_preset")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotFile, gotName = string(b), hdr.Filename
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"secure_url":"https://res.test/v1/clip.mp4","public_id":"clip"}`)
	}))
	defer srv.Close()

	clock := application.NewManualClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	up, err := NewCloudinary("demo", "unsigned", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()), WithClock(clock))
	require.NoError(t, err)

	asset := writeAsset(t, "clip.mp4", []byte("fake-video-bytes"))
	res, err := up.Upload(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, "/demo/video/upload", gotPath)
	assert.Equal(t, "unsigned", gotPreset)
	assert.Equal(t, "fake-video-bytes", gotFile)
	assert.Equal(t, "clip.mp4", gotName)
	assert.Equal(t, analysis.UploadResult{URL: "https://res.test/v1/clip.mp4", AssetID: "asset-1", UploadedAt: clock.Now()}, res)
}

func TestCloudinaryUpload_FilenameArrivesIntact(t *testing.T) {
	names := []string{
		"scan\u00a001 é.mp4",
		`echo "A".mp4`,
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseMultipartForm(1<<20))
				_, hdr, err := r.FormFile("file")
				require.NoError(t, err)
				got = hdr.Filename
				_, _ = io.WriteString(w, `{"secure_url":"https://res.test/v1/clip.mp4"}`)
			}))
			defer srv.Close()

			up, err := NewCloudinary("demo", "unsigned", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			require.NoError(t, err)
			_, err = up.Upload(context.Background(), writeAsset(t, name, []byte("v")))
			require.NoError(t, err)
			assert.Equal(t, name, got)
		})
	}
}

func TestCloudinaryUpload_ImageEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"secure_url":"https://res.test/x.png"}`)
	}))
	defer srv.Close()

	up, err := NewCloudinary("demo", "unsigned", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	asset := writeAsset(t, "x.png", []byte("\x89PNG\r\n\x1a\n"))
	asset.Kind, asset.ContentType = media.KindImage, ""

	_, err = up.Upload(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, "/demo/image/upload", gotPath)
}

func TestCloudinaryUpload_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "error status", status: http.StatusBadRequest, body: `{"error":{"message":"Upload preset not found"}}`, wantStatus: 400, wantMsg: "Upload preset not found"},
		{name: "missing url", status: http.StatusOK, body: `{"public_id":"x"}`, wantStatus: 200, wantMsg: "secure_url"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantStatus: 200, wantMsg: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			up, err := NewCloudinary("demo", "unsigned", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			require.NoError(t, err)

			_, err = up.Upload(context.Background(), writeAsset(t, "clip.mp4", []byte("x")))
			require.ErrorIs(t, err, analysis.ErrUploadFailed)
			var ue *analysis.UploadError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.wantStatus, ue.Status)
			assert.Contains(t, ue.Error(), tt.wantMsg)
		})
	}
}

func TestCloudinaryUpload_MissingFile(t *testing.T) {
	up, err := NewCloudinary("demo", "unsigned")
	require.NoError(t, err)
	_, err = up.Upload(context.Background(), media.Asset{Path: filepath.Join(t.TempDir(), "nope.mp4")})
	require.ErrorIs(t, err, analysis.ErrUploadFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewCloudinary_RequiresSettings(t *testing.T) {
	_, err := NewCloudinary("", "preset")
	assert.Error(t, err)
	_, err = NewCloudinary("cloud", "")
	assert.Error(t, err)
}

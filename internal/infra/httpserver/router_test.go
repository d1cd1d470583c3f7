package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	reportapp "github.com/bryanwahyu/mediscan/internal/application/report"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/failures"
	"github.com/bryanwahyu/mediscan/internal/domain/history"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
	"github.com/bryanwahyu/mediscan/internal/infra/db/sqlite"
	"github.com/bryanwahyu/mediscan/internal/infra/export"
	"github.com/bryanwahyu/mediscan/internal/infra/selector"
	"github.com/bryanwahyu/mediscan/internal/metrics"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type stubUploader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *stubUploader) Upload(_ context.Context, a media.Asset) (analysis.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		err := u.err
		u.err = nil
		return analysis.UploadResult{}, err
	}
	return analysis.UploadResult{URL: "https://res.test/image/upload/" + a.Name}, nil
}

func (u *stubUploader) failNext(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
}

func (u *stubUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, req analysis.AnalyzeRequest) (string, error) {
	return "**Impression:** no acute findings. *Low* concern.", nil
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	uploader *stubUploader
	registry *Registry
	staging  *selector.Staged
	exports  string
	history  history.Repository
	failures failures.Repository
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := sqlite.Open(ctx, filepath.Join(dir, "mediscan.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	staging, err := selector.NewStaged(filepath.Join(dir, "staging"), nil)
	require.NoError(t, err)

	h := &harness{
		t:        t,
		uploader: &stubUploader{},
		staging:  staging,
		exports:  filepath.Join(dir, "reports"),
		history:  sqlite.NewHistoryRepository(db),
		failures: sqlite.NewFailureRepository(db),
	}
	exporter := export.NewService(h.exports, export.PDFRenderer{}, nil)
	h.registry = NewRegistry(func(id string) *pipeline.Orchestrator {
		return (&pipeline.Orchestrator{
			Selector: staging,
			Uploader: h.uploader,
			Analyzer: stubAnalyzer{},
			Builder:  reportapp.NewBuilder("mediscan"),
			Exporter: exporter,
			History:  h.history,
			Failures: h.failures,
		}).WithSessionID(id)
	}, 8)

	deps := Deps{
		Sessions:  h.registry,
		Staging:   staging,
		History:   h.history,
		Failures:  h.failures,
		MaxUpload: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.srv = httptest.NewServer(NewRouter(deps))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(method, path string, body any, out any) int {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	return h.send(req, out)
}

func (h *harness) send(req *http.Request, out any) int {
	h.t.Helper()
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) upload(sessionID, kind, name string, data []byte, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(h.t, mw.WriteField("kind", kind))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(h.t, err)
	_, err = part.Write(data)
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/v1/sessions/"+sessionID+"/media", &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.send(req, out)
}

func (h *harness) newSession() string {
	h.t.Helper()
	var snap pipeline.Snapshot
	require.Equal(h.t, http.StatusCreated, h.do(http.MethodPost, "/v1/sessions", nil, &snap))
	require.Equal(h.t, pipeline.PhaseIdle, snap.Phase)
	return snap.SessionID
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func TestRouter_FullFlow(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.newSession()

	var sel mediaResponse
	require.Equal(t, http.StatusOK, h.upload(sid, "image", "chest.png", pngBytes, &sel))
	assert.Equal(t, pipeline.PhaseMediaSelected, sel.Session.Phase)
	assert.Equal(t, "image/png", sel.Asset.ContentType)

	var res analysisResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/sessions/"+sid+"/analyze",
		map[string]string{"analysis_type": "xray"}, &res))
	assert.Equal(t, pipeline.PhaseResultReady, res.Session.Phase)
	assert.Contains(t, res.Result.Raw, "no acute findings")
	assert.NotEmpty(t, res.Result.Segments)

	var exp report.ExportResult
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/sessions/"+sid+"/export",
		map[string]string{"patient_name": "Jane Doe"}, &exp))
	assert.True(t, exp.Saved)
	assert.FileExists(t, exp.Path)
	assert.Equal(t, h.exports, filepath.Dir(exp.Path))
	assert.Contains(t, exp.FileName, "_Image_Report_Jane_Doe_")

	var records []*history.Record
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/analyses?page=1&page_size=10", nil, &records))
	require.Len(t, records, 1)
	assert.Equal(t, sid, records[0].SessionID)
	assert.Equal(t, "xray", records[0].TypeID)

	var latest history.Record
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/analyses/latest?session_id="+sid, nil, &latest))
	assert.Equal(t, records[0].ID, latest.ID)

	var snap pipeline.Snapshot
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/sessions/"+sid+"/reset", nil, &snap))
	assert.Equal(t, pipeline.PhaseIdle, snap.Phase)
	assert.NoFileExists(t, sel.Asset.Path, "reset discards the staged file")
}

func TestRouter_UploadFailureRecordedThenRetry(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.newSession()
	require.Equal(t, http.StatusOK, h.upload(sid, "image", "skin.png", pngBytes, nil))

	h.uploader.failNext(&analysis.UploadError{Status: 500, Cause: errors.New("cloud down")})
	var e errorResponse
	require.Equal(t, http.StatusBadGateway, h.do(http.MethodPost, "/v1/sessions/"+sid+"/analyze",
		map[string]string{"analysis_type": "skin"}, &e))
	assert.Equal(t, "upload_failed", e.Error)

	var fails []*failures.Failure
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/sessions/"+sid+"/failures", nil, &fails))
	require.Len(t, fails, 1)
	assert.Equal(t, "upload", fails[0].Stage)

	var res analysisResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/sessions/"+sid+"/retry", nil, &res))
	assert.Equal(t, pipeline.PhaseResultReady, res.Session.Phase)
	assert.Equal(t, 2, h.uploader.count())
}

func TestRouter_ErrorMapping(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.newSession()
	path := "/v1/sessions/" + sid

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/does-not-exist", nil, http.StatusNotFound, "session_not_found"},
		{"bad session id", http.MethodGet, "/v1/sessions/a.b", nil, http.StatusBadRequest, "invalid_request"},
		{"export without result", http.MethodPost, path + "/export", map[string]string{}, http.StatusConflict, "no_result"},
		{"analyze without media", http.MethodPost, path + "/analyze", map[string]string{"analysis_type": "ecg"}, http.StatusConflict, "invalid_transition"},
		{"retry when not failed", http.MethodPost, path + "/retry", nil, http.StatusConflict, "invalid_transition"},
		{"missing type", http.MethodPost, path + "/analyze", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"bad patient name", http.MethodPost, path + "/export", map[string]string{"patient_name": "<b>x</b>"}, http.StatusBadRequest, "invalid_request"},
		{"bad kind filter", http.MethodGet, "/v1/analysis-types?kind=audio", nil, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errorResponse
			assert.Equal(t, tt.status, h.do(tt.method, tt.path, tt.body, &e))
			assert.Equal(t, tt.code, e.Error)
		})
	}
}

func TestRouter_AnalysisRequestErrors(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.newSession()
	require.Equal(t, http.StatusOK, h.upload(sid, "image", "eye.png", pngBytes, nil))

	var e errorResponse
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/sessions/"+sid+"/analyze",
		map[string]string{"analysis_type": "custom", "prompt": "   "}, &e))
	assert.Equal(t, "prompt_required", e.Error)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/sessions/"+sid+"/analyze",
		map[string]string{"analysis_type": "ecg"}, &e), "video-only type on an image")
	assert.Equal(t, "unknown_analysis_type", e.Error)

	assert.Zero(t, h.uploader.count())
}

func TestRouter_MediaRejected(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.newSession()

	var e errorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, h.upload(sid, "video", "fake.mp4", pngBytes, &e))
	assert.Equal(t, "unsupported_media", e.Error)

	assert.Equal(t, http.StatusBadRequest, h.upload(sid, "audio", "a.png", pngBytes, &e))
	assert.Equal(t, "invalid_request", e.Error)

	big := append(append([]byte(nil), pngBytes...), bytes.Repeat([]byte{0}, 1<<20)...)
	assert.Equal(t, http.StatusUnprocessableEntity, h.upload(sid, "image", "big.png", big, &e))
	assert.Contains(t, e.Detail, "byte limit")

	entries, err := filepath.Glob(filepath.Join(h.staging.Root, "*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected media is not kept")

	var snap pipeline.Snapshot
	h.do(http.MethodGet, "/v1/sessions/"+sid, nil, &snap)
	assert.Equal(t, pipeline.PhaseIdle, snap.Phase)
}

func TestRouter_AnalysisTypes(t *testing.T) {
	h := newHarness(t, nil)

	var all, images []analysis.TypeDescriptor
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/analysis-types", nil, &all))
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/analysis-types?kind=image", nil, &images))
	assert.Len(t, all, 10)
	assert.Len(t, images, 4)
	for _, d := range images {
		assert.True(t, d.Supports(media.KindImage), d.ID)
	}
}

func TestRouter_Auth(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.APIKeys = map[string]string{"clinic": "s3cret"} })

	var e errorResponse
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/analysis-types", nil, &e))

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/v1/analysis-types", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, h.send(req, nil))

	resp, err := h.srv.Client().Get(h.srv.URL + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.srv.Client().Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_ReadinessAndLiveness(t *testing.T) {
	var down atomic.Bool
	h := newHarness(t, func(d *Deps) {
		d.Health = map[string]middleware.HealthChecker{
			"storage": middleware.CheckFunc(func(context.Context) error {
				if down.Load() {
					return errors.New("upload preset rejected")
				}
				return nil
			}),
		}
	})

	var live middleware.Liveness
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/live", nil, &live))
	assert.Equal(t, 0, live.Sessions)
	h.newSession()
	h.newSession()
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/live", nil, &live))
	assert.Equal(t, 2, live.Sessions)

	var ready middleware.HealthStatus
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/ready", nil, &ready))
	assert.Equal(t, "ok", ready.Checks["staging"].Status)
	assert.Equal(t, "ok", ready.Checks["storage"].Status)

	down.Store(true)
	require.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/ready", nil, &ready))
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, "upload preset rejected", ready.Checks["storage"].Message)
}

func TestRegistry_EvictsIdleSessions(t *testing.T) {
	clock := application.NewManualClock(time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC))
	reg := NewRegistry(func(id string) *pipeline.Orchestrator {
		return (&pipeline.Orchestrator{}).WithSessionID(id)
	}, 2)
	reg.Clock = clock
	var evicted []string
	reg.OnEvict = func(s pipeline.Snapshot) { evicted = append(evicted, s.SessionID) }

	a, err := reg.Create()
	require.NoError(t, err)
	clock.Advance(time.Second)
	b, err := reg.Create()
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.Get(a.SessionID()) // a is now the most recent
	require.NoError(t, err)

	_, err = reg.Create()
	require.NoError(t, err)
	assert.Equal(t, []string{b.SessionID()}, evicted)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSessions))

	_, err = reg.Get(b.SessionID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, reg.Delete(a.SessionID()))
	assert.ErrorIs(t, reg.Delete(a.SessionID()), ErrSessionNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestClassify(t *testing.T) {
	status, code := classify(&report.ExportError{Phase: report.PhasePlace, Cause: errors.New("disk full")})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "export_failed", code)

	status, code = classify(&analysis.AnalysisError{Kind: analysis.FailureMalformed, Cause: errors.New("x")})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "analysis_failed", code)

	status, _ = classify(pipeline.ErrBusy)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = classify(fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 10}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	status, _ = classify(errors.New(strings.Repeat("x", 3)))
	assert.Equal(t, http.StatusInternalServerError, status)
}

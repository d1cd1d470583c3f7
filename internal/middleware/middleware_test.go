package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xlog "github.com/bryanwahyu/mediscan/internal/log"
	"github.com/bryanwahyu/mediscan/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(ClientFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"clinic-a": "secret-a"})(okHandler)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		body   string
	}{
		{"missing", "/v1/sessions", nil, http.StatusUnauthorized, ""},
		{"bearer", "/v1/sessions", map[string]string{"Authorization": "Bearer secret-a"}, http.StatusOK, "clinic-a"},
		{"raw key", "/v1/sessions", map[string]string{"Authorization": "secret-a"}, http.StatusOK, "clinic-a"},
		{"x-api-key", "/v1/sessions", map[string]string{"X-API-Key": "secret-a"}, http.StatusOK, "clinic-a"},
		{"wrong", "/v1/sessions", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, ""},
		{"public", "/health", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			}
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutKeys(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 2, WindowSize: time.Minute})(okHandler)

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.7:4567"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/v1/analysis-types").Code)
	assert.Equal(t, http.StatusOK, do("/v1/analysis-types").Code)
	rec := do("/v1/analysis-types")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusOK, do("/health").Code, "public paths are never limited")
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/x", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	ok := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "2xx")
	bad := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "4xx")
	beforeOK, beforeBad := testutil.ToFloat64(ok), testutil.ToFloat64(bad)

	var inFlight float64
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight = testutil.ToFloat64(metrics.HTTPRequestsInFlight)
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/good", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bad", nil))

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeBad+1, testutil.ToFloat64(bad))
	assert.GreaterOrEqual(t, inFlight, 1.0)
}

func TestMetricsHandlerExposesStageCounters(t *testing.T) {
	metrics.RecordStage("upload", metrics.OutcomeSuccess)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mediscan_stage_total{outcome="success",stage="upload"}`)
}

func TestRequestIDAndLogging(t *testing.T) {
	var seen string
	h := RequestID(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = xlog.RequestIDFromContext(r.Context())
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	req.Header.Set(RequestIDHeader, "rid-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "rid-123", seen)
	assert.Equal(t, "rid-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/x", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"storage": CheckFunc(func(context.Context) error { return nil }),
		"db":      CheckFunc(func(context.Context) error { return errors.New("down") }),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "ok", body.Checks["storage"].Status)
	assert.Equal(t, "failing", body.Checks["db"].Status)
	assert.Equal(t, "down", body.Checks["db"].Message)
}

func TestReadinessHandler_StagingDir(t *testing.T) {
	dir := t.TempDir()
	h := ReadinessHandler(map[string]HealthChecker{"staging": DirWritable(dir)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "check file must be cleaned up")

	h = ReadinessHandler(map[string]HealthChecker{"staging": DirWritable(filepath.Join(dir, "missing"))})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "failing", body.Checks["staging"].Status)
	assert.Contains(t, body.Checks["staging"].Message, "not writable")
}

func TestLivenessHandler_ReportsSessions(t *testing.T) {
	n := 3
	h := LivenessHandler(func() int { return n })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body Liveness
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alive", body.Status)
	assert.Equal(t, 3, body.Sessions)
	assert.NotEmpty(t, body.Uptime)

	rec = httptest.NewRecorder()
	LivenessHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidate(t *testing.T) {
	type analyzeReq struct {
		TypeID  string `json:"analysis_type" validate:"required,safeid"`
		Prompt  string `json:"prompt" validate:"max=20"`
		Patient string `json:"patient_name" validate:"omitempty,person"`
	}

	require.NoError(t, Validate(analyzeReq{TypeID: "ecg", Patient: "Jane O'Neil-Doe"}))
	require.NoError(t, Validate(analyzeReq{TypeID: "fundus", Patient: "José Álvarez"}))

	err := Validate(analyzeReq{TypeID: "../x", Prompt: strings.Repeat("a", 21), Patient: "<script>"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, verr.Fields, "analysis_type")
	assert.Contains(t, verr.Fields, "prompt")
	assert.Contains(t, verr.Fields, "patient_name")
	assert.Contains(t, err.Error(), "analysis_type:")

	err = Validate(analyzeReq{})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["analysis_type"])
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Error(t, ValidateSessionID(""))
	assert.Error(t, ValidateSessionID("a/b"))
}

func TestSanitizeAndLimit(t *testing.T) {
	assert.Equal(t, "look at\tthe\nrhythm", SanitizeString(" look at\tthe\nrhythm\x00\x07 "))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 5, ValidateLimit(5))
}

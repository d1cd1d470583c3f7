package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/failures"
	"github.com/bryanwahyu/mediscan/internal/domain/history"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
	"github.com/bryanwahyu/mediscan/internal/infra/selector"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

// Deps is everything the HTTP surface needs. History and Failures are
// optional.
type Deps struct {
	Sessions  *Registry
	Staging   *selector.Staged
	Catalog   *analysis.Catalog
	History   history.Repository
	Failures  failures.Repository
	MaxUpload int64

	Health      map[string]middleware.HealthChecker
	APIKeys     map[string]string
	RateLimit   middleware.RateLimitConfig
	CORSOrigins []string
}

type Router struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	if d.Catalog == nil {
		d.Catalog = analysis.DefaultCatalog()
	}
	r := &Router{Deps: d}
	if d.Sessions.OnEvict == nil {
		d.Sessions.OnEvict = r.discardStaged
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(d.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	mux.Use(middleware.APIKeyAuth(d.APIKeys))
	mux.Use(middleware.RateLimit(d.RateLimit))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler(r.readiness()))
	mux.Get("/live", middleware.LivenessHandler(d.Sessions.Len))
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/analysis-types", r.wrap(r.handleTypes))
		rt.Get("/analyses", r.wrap(r.handleHistory))
		rt.Get("/analyses/latest", r.wrap(r.handleLatest))

		rt.Post("/sessions", r.wrap(r.handleCreateSession))
		rt.Route("/sessions/{id}", func(st chi.Router) {
			st.Get("/", r.wrap(r.handleGetSession))
			st.Delete("/", r.wrap(r.handleDeleteSession))
			st.Post("/media", r.wrap(r.handleMedia))
			st.Post("/analyze", r.wrap(r.handleAnalyze))
			st.Post("/retry", r.wrap(r.handleRetry))
			st.Post("/export", r.wrap(r.handleExport))
			st.Post("/reset", r.wrap(r.handleReset))
			st.Get("/failures", r.wrap(r.handleFailures))
		})
	})

	return otelhttp.NewHandler(mux, "mediscan")
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, code := classify(err)
			logger := xlog.FromContext(req.Context())
			if status >= 500 {
				logger.Error().Err(err).Str("code", code).Msg("request failed")
			} else {
				logger.Debug().Err(err).Str("code", code).Msg("request rejected")
			}
			writeJSON(w, status, middleware.ErrorBody{Error: code, Detail: err.Error()})
		}
	}
}

func classify(err error) (int, string) {
	var (
		verr    *middleware.ValidationError
		tooBig  *http.MaxBytesError
		syntax  *json.SyntaxError
		exportE *report.ExportError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &syntax):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "media_too_large"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable, "too_many_sessions"
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, pipeline.ErrStaleSession):
		return http.StatusConflict, "stale_session"
	case errors.Is(err, pipeline.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, report.ErrNoResult):
		return http.StatusConflict, "no_result"
	case errors.Is(err, pipeline.ErrPromptRequired):
		return http.StatusBadRequest, "prompt_required"
	case errors.Is(err, analysis.ErrUnknownType):
		return http.StatusBadRequest, "unknown_analysis_type"
	case errors.Is(err, media.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, media.ErrUnsupportedMedia):
		return http.StatusUnprocessableEntity, "unsupported_media"
	case errors.Is(err, analysis.ErrUploadFailed):
		return http.StatusBadGateway, "upload_failed"
	case errors.Is(err, analysis.ErrAnalysisFailed):
		return http.StatusBadGateway, "analysis_failed"
	case errors.As(err, &exportE):
		return http.StatusInternalServerError, "export_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, dst any) error {
	if req.Body == nil || req.ContentLength == 0 {
		return middleware.Validate(dst)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, req.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return &middleware.ValidationError{Fields: map[string]string{"body": err.Error()}}
	}
	return middleware.Validate(dst)
}

func (r *Router) session(req *http.Request) (*pipeline.Orchestrator, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return nil, err
	}
	return r.Sessions.Get(id)
}

// readiness gates new sessions on a writable staging dir and on the
// upload backend when one is checked.
func (r *Router) readiness() map[string]middleware.HealthChecker {
	checks := map[string]middleware.HealthChecker{}
	if r.Staging != nil {
		checks["staging"] = middleware.DirWritable(r.Staging.Root)
	}
	if c, ok := r.Health["storage"]; ok {
		checks["storage"] = c
	}
	return checks
}

// discardStaged removes the staged file of a session that is going away.
func (r *Router) discardStaged(last pipeline.Snapshot) {
	if r.Staging == nil || last.Asset == nil {
		return
	}
	_ = r.Staging.Remove(filepath.Base(last.Asset.Path))
}

// GET /v1/analysis-types?kind=video
func (r *Router) handleTypes(w http.ResponseWriter, req *http.Request) error {
	var kind media.Kind
	if raw := req.URL.Query().Get("kind"); raw != "" {
		k, err := media.ParseKind(raw)
		if err != nil {
			return &middleware.ValidationError{Fields: map[string]string{"kind": "must be image or video"}}
		}
		kind = k
	}
	writeJSON(w, http.StatusOK, r.Catalog.List(kind))
	return nil
}

// POST /v1/sessions
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	o, err := r.Sessions.Create()
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, o.Snapshot())
	return nil
}

// GET /v1/sessions/{id}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
	return nil
}

// DELETE /v1/sessions/{id}
func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return err
	}
	if err := r.Sessions.Delete(id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type mediaResponse struct {
	pipeline.SelectOutcome
	Session pipeline.Snapshot `json:"session"`
}

// POST /v1/sessions/{id}/media (multipart: kind, file)
func (r *Router) handleMedia(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	if r.Staging == nil {
		return fmt.Errorf("%w: media staging is disabled", media.ErrPermissionDenied)
	}
	if r.MaxUpload > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.MaxUpload+1<<20)
	}

	if err := req.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return &middleware.ValidationError{Fields: map[string]string{"body": "must be multipart/form-data"}}
	}
	defer func() { _ = req.MultipartForm.RemoveAll() }()

	kind, err := media.ParseKind(req.FormValue("kind"))
	if err != nil {
		return &middleware.ValidationError{Fields: map[string]string{"kind": "must be image or video"}}
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return &middleware.ValidationError{Fields: map[string]string{"file": "is required"}}
	}
	defer file.Close()

	staged, err := r.Staging.Stage(req.Context(), header.Filename, file, r.MaxUpload)
	if err != nil {
		return err
	}

	previous := o.Snapshot().Asset
	out, err := o.SelectMedia(req.Context(), media.SelectRequest{Kind: kind, Source: staged})
	if err != nil {
		_ = r.Staging.Remove(staged)
		return err
	}
	if previous != nil && previous.Path != out.Asset.Path {
		_ = r.Staging.Remove(filepath.Base(previous.Path))
	}
	writeJSON(w, http.StatusOK, mediaResponse{SelectOutcome: out, Session: o.Snapshot()})
	return nil
}

type analyzeRequest struct {
	AnalysisType string `json:"analysis_type" validate:"required,safeid"`
	Prompt       string `json:"prompt" validate:"max=4000"`
}

type analysisResponse struct {
	Result  analysis.Result   `json:"result"`
	Session pipeline.Snapshot `json:"session"`
}

// POST /v1/sessions/{id}/analyze
// Body: {"analysis_type": "ecg", "prompt": "..."}
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	var body analyzeRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	res, err := o.RunAnalysis(req.Context(), body.AnalysisType, middleware.SanitizeString(body.Prompt))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysisResponse{Result: res, Session: o.Snapshot()})
	return nil
}

// POST /v1/sessions/{id}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	res, err := o.Retry(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysisResponse{Result: res, Session: o.Snapshot()})
	return nil
}

type exportRequest struct {
	PatientName string `json:"patient_name" validate:"omitempty,person"`
}

// POST /v1/sessions/{id}/export
// Body: {"patient_name": "Jane Doe"}
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	var body exportRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	res, err := o.Export(req.Context(), strings.TrimSpace(body.PatientName))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// POST /v1/sessions/{id}/reset
func (r *Router) handleReset(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	last := o.Snapshot()
	o.Reset()
	r.discardStaged(last)
	writeJSON(w, http.StatusOK, o.Snapshot())
	return nil
}

// GET /v1/sessions/{id}/failures?limit=20
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	o, err := r.session(req)
	if err != nil {
		return err
	}
	if r.Failures == nil {
		writeJSON(w, http.StatusOK, []*failures.Failure{})
		return nil
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.Failures.ListBySession(req.Context(), o.SessionID(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	if r.History == nil {
		writeJSON(w, http.StatusOK, []*history.Record{})
		return nil
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}

	list, err := r.History.Paginate(req.Context(), page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/latest?session_id=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	sid := req.URL.Query().Get("session_id")
	if err := middleware.ValidateSessionID(sid); err != nil {
		return err
	}
	var rec *history.Record
	if r.History != nil {
		var err error
		if rec, err = r.History.LatestBySession(req.Context(), sid); err != nil {
			return err
		}
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, middleware.ErrorBody{Error: "not_found", Detail: "no analysis recorded for this session"})
		return nil
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

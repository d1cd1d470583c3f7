package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/failures"
	"github.com/bryanwahyu/mediscan/internal/domain/history"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
	"github.com/bryanwahyu/mediscan/internal/metrics"
)

// ReportBuilder assembles a report from the current result.
type ReportBuilder interface {
	Build(result *analysis.Result, meta report.Metadata) (*report.Report, error)
}

// Orchestrator drives one analysis session:
// select → upload → analyze → export.
//
// It is safe for concurrent use. At most one of SelectMedia, RunAnalysis,
// Retry and Export is in flight at a time; overlapping triggers get ErrBusy.
// Network calls run without the lock held. Every completion is checked
// against the generation it started in and discarded if the session was
// reset or its media replaced meanwhile.
type Orchestrator struct {
	Selector media.Selector
	Uploader analysis.Uploader
	Analyzer analysis.Client
	Builder  ReportBuilder
	Exporter report.Exporter
	Catalog  *analysis.Catalog
	Clock    application.Clock

	// optional
	History  history.Repository
	Failures failures.Repository
	Limits   media.Limits
	Logger   *zerolog.Logger

	once      sync.Once
	id        string
	mu        sync.Mutex
	state     State
	gen       uint64
	selecting bool
	notice    string
}

// SelectOutcome is the result of a selection attempt. Canceled is a neutral
// outcome, not an error.
type SelectOutcome struct {
	Asset    media.Asset `json:"asset"`
	Canceled bool        `json:"canceled"`
	Notice   string      `json:"notice,omitempty"`
}

func (o *Orchestrator) init() {
	o.once.Do(func() {
		if o.id == "" {
			o.id = uuid.NewString()
		}
		if o.Clock == nil {
			o.Clock = application.SystemClock{}
		}
		if o.Catalog == nil {
			o.Catalog = analysis.DefaultCatalog()
		}
		if o.state == nil {
			o.state = Idle{}
		}
	})
}

// WithSessionID fixes the session id used in logs, history and failure rows.
// It must be called before the first use of the orchestrator.
func (o *Orchestrator) WithSessionID(id string) *Orchestrator {
	o.id = id
	return o
}

// SessionID returns the id this orchestrator records under.
func (o *Orchestrator) SessionID() string {
	o.init()
	return o.id
}

func (o *Orchestrator) log() zerolog.Logger {
	if o.Logger != nil {
		return o.Logger.With().Str("session_id", o.id).Logger()
	}
	return xlog.WithComponent("pipeline").With().Str("session_id", o.id).Logger()
}

// State returns the current state value.
func (o *Orchestrator) State() State {
	o.init()
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a flattened view of the session for display.
func (o *Orchestrator) Snapshot() Snapshot {
	o.init()
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := describe(o.state)
	snap.SessionID = o.id
	snap.Notice = o.notice
	snap.Generation = o.gen
	snap.Busy = snap.Busy || o.selecting
	snap.TakenAt = o.Clock.Now()
	return snap
}

func (o *Orchestrator) busyLocked() bool {
	return o.selecting || busy(o.state)
}

//
// ==== USE CASES ====
//

// SelectMedia asks the selector for a new asset. On success the asset
// replaces any previous one and the cached upload and result are dropped.
// Denial and other failures leave the state untouched.
func (o *Orchestrator) SelectMedia(ctx context.Context, req media.SelectRequest) (SelectOutcome, error) {
	o.init()
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		metrics.RecordStage(string(StageSelect), metrics.OutcomeRejected)
		return SelectOutcome{}, ErrBusy
	}
	o.selecting = true
	gen := o.gen
	o.mu.Unlock()

	if req.Limits == (media.Limits{}) {
		req.Limits = o.Limits
	}
	if req.Kind == media.KindVideo && req.Limits.MaxDuration == 0 {
		req.Limits.MaxDuration = media.MaxVideoDuration
	}

	asset, err := o.Selector.Select(ctx, req)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		metrics.RecordStage(string(StageSelect), metrics.OutcomeStale)
		return SelectOutcome{}, ErrStaleSession
	}
	o.selecting = false

	if err != nil {
		switch {
		case errors.Is(err, media.ErrSelectionCanceled):
			o.notice = "No media selected."
			o.mu.Unlock()
			metrics.RecordStage(string(StageSelect), metrics.OutcomeCanceled)
			return SelectOutcome{Canceled: true, Notice: "No media selected."}, nil
		case errors.Is(err, media.ErrPermissionDenied):
			o.notice = "Permission needed: grant access to your media library to pick a file."
		default:
			o.notice = "Could not load the selected media: " + err.Error()
		}
		notice := o.notice
		o.mu.Unlock()
		metrics.RecordStage(string(StageSelect), metrics.OutcomeFailure)
		o.recordFailure(ctx, StageSelect, err, map[string]any{"kind": req.Kind})
		return SelectOutcome{Notice: notice}, err
	}

	if asset.ID == "" {
		asset.ID = media.AssetID(uuid.NewString())
	}
	if asset.Kind == "" {
		asset.Kind = req.Kind
	}
	if asset.SelectedAt.IsZero() {
		asset.SelectedAt = o.Clock.Now()
	}
	// media baru → upload & result lama tidak berlaku lagi
	o.gen++
	o.state = MediaSelected{Asset: asset}
	o.notice = ""
	o.mu.Unlock()

	metrics.RecordStage(string(StageSelect), metrics.OutcomeSuccess)
	l := o.log()
	l.Info().
		Str("asset_id", string(asset.ID)).
		Str("kind", string(asset.Kind)).
		Int64("size", asset.Size).
		Msg("media selected")
	return SelectOutcome{Asset: asset}, nil
}

// RunAnalysis uploads the selected asset (once per asset) and submits it for
// analysis with the prompt resolved from typeID. It is valid once media is
// selected, and again after a result or a failure to re-run with another
// type; the cached upload is reused in that case.
func (o *Orchestrator) RunAnalysis(ctx context.Context, typeID, userPrompt string) (analysis.Result, error) {
	o.init()
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		metrics.RecordStage(string(StageAnalyze), metrics.OutcomeRejected)
		return analysis.Result{}, ErrBusy
	}

	var (
		asset  media.Asset
		cached *analysis.UploadResult
	)
	switch s := o.state.(type) {
	case MediaSelected:
		asset = s.Asset
	case ResultReady:
		asset = s.Asset
		up := s.Result.Upload
		cached = &up
	case Failed:
		asset, cached = s.Asset, s.Upload
	default:
		o.mu.Unlock()
		return analysis.Result{}, fmt.Errorf("%w: no media selected", ErrInvalidTransition)
	}

	req, err := o.Catalog.Resolve(typeID, userPrompt, asset.Kind)
	if err != nil {
		o.mu.Unlock()
		return analysis.Result{}, err
	}
	if req.Prompt == "" {
		o.mu.Unlock()
		return analysis.Result{}, ErrPromptRequired
	}
	return o.advanceLocked(ctx, asset, cached, req)
}

// Retry re-runs the stage that failed, with the same inputs. An analyze
// failure retries the inference call against the existing upload.
func (o *Orchestrator) Retry(ctx context.Context) (analysis.Result, error) {
	o.init()
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		return analysis.Result{}, ErrBusy
	}
	f, ok := o.state.(Failed)
	if !ok {
		o.mu.Unlock()
		return analysis.Result{}, fmt.Errorf("%w: nothing to retry in %s", ErrInvalidTransition, o.state.Phase())
	}
	switch f.Stage {
	case StageUpload:
		return o.advanceLocked(ctx, f.Asset, nil, f.Request)
	case StageAnalyze:
		return o.advanceLocked(ctx, f.Asset, f.Upload, f.Request)
	}
	o.mu.Unlock()
	return analysis.Result{}, fmt.Errorf("%w: cannot retry %s", ErrInvalidTransition, f.Stage)
}

// advanceLocked runs upload (unless cached) then analysis. Called with o.mu
// held; returns with it released.
func (o *Orchestrator) advanceLocked(ctx context.Context, asset media.Asset, cached *analysis.UploadResult, req analysis.Request) (analysis.Result, error) {
	gen := o.gen
	l := o.log().With().Str("asset_id", string(asset.ID)).Str("type_id", req.TypeID).Logger()

	if cached == nil || cached.AssetID != asset.ID || cached.URL == "" {
		o.state = Uploading{Asset: asset, Request: req}
		o.notice = ""
		o.mu.Unlock()

		start := time.Now()
		up, err := o.Uploader.Upload(ctx, asset)
		metrics.ObserveStage(string(StageUpload), start)

		o.mu.Lock()
		if gen != o.gen {
			o.mu.Unlock()
			metrics.RecordStage(string(StageUpload), metrics.OutcomeStale)
			l.Debug().Msg("upload completed after session changed; discarded")
			return analysis.Result{}, ErrStaleSession
		}
		if err != nil {
			o.state = Failed{Stage: StageUpload, Cause: err, Asset: asset, Request: req}
			o.notice = "Upload failed. You can retry."
			o.mu.Unlock()
			metrics.RecordStage(string(StageUpload), metrics.OutcomeFailure)
			l.Warn().Err(err).Msg("upload failed")
			o.recordFailure(ctx, StageUpload, err, map[string]any{"asset_id": asset.ID, "kind": asset.Kind})
			return analysis.Result{}, err
		}
		up.AssetID = asset.ID
		if up.UploadedAt.IsZero() {
			up.UploadedAt = o.Clock.Now()
		}
		cached = &up
		metrics.RecordStage(string(StageUpload), metrics.OutcomeSuccess)
		l.Info().Str("url", up.URL).Msg("media uploaded")
	}

	upload := *cached
	o.state = Analyzing{Asset: asset, Upload: upload, Request: req}
	o.notice = ""
	o.mu.Unlock()

	start := time.Now()
	raw, err := o.Analyzer.Analyze(ctx, analysis.AnalyzeRequest{
		MediaURL: upload.URL,
		Kind:     asset.Kind,
		Prompt:   req.Prompt,
	})
	metrics.ObserveStage(string(StageAnalyze), start)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		metrics.RecordStage(string(StageAnalyze), metrics.OutcomeStale)
		l.Debug().Msg("analysis completed after session changed; discarded")
		return analysis.Result{}, ErrStaleSession
	}
	if err != nil {
		o.state = Failed{Stage: StageAnalyze, Cause: err, Asset: asset, Upload: &upload, Request: req}
		o.notice = "Analysis failed. You can retry without uploading again."
		o.mu.Unlock()
		metrics.RecordStage(string(StageAnalyze), metrics.OutcomeFailure)
		l.Warn().Err(err).Msg("analysis failed")
		o.recordFailure(ctx, StageAnalyze, err, map[string]any{"asset_id": asset.ID, "type_id": req.TypeID, "url": upload.URL})
		return analysis.Result{}, err
	}

	result := analysis.Result{
		Raw:         raw,
		Segments:    analysis.Format(raw),
		Upload:      upload,
		Request:     req,
		Kind:        asset.Kind,
		CompletedAt: o.Clock.Now(),
	}
	o.state = ResultReady{Asset: asset, Result: result}
	o.mu.Unlock()

	metrics.RecordStage(string(StageAnalyze), metrics.OutcomeSuccess)
	l.Info().Int("chars", len(raw)).Msg("analysis ready")
	o.recordHistory(ctx, asset, result)
	return result, nil
}

// Export builds a fresh report from the current result and hands it to the
// exporter. Failures return to ResultReady with the error surfaced; the
// result is never lost.
func (o *Orchestrator) Export(ctx context.Context, patientName string) (report.ExportResult, error) {
	o.init()
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		metrics.RecordStage(string(StageExport), metrics.OutcomeRejected)
		return report.ExportResult{}, ErrBusy
	}
	rr, ok := o.state.(ResultReady)
	if !ok {
		o.mu.Unlock()
		// no result → builder reports ErrNoResult
		_, err := o.Builder.Build(nil, report.Metadata{PatientName: patientName})
		if err == nil {
			err = report.ErrNoResult
		}
		return report.ExportResult{}, err
	}
	desc, found := o.Catalog.Get(rr.Result.Request.TypeID)
	if !found {
		desc, _ = o.Catalog.Get(analysis.CustomTypeID)
	}
	o.state = Exporting{Asset: rr.Asset, Result: rr.Result}
	o.notice = ""
	gen := o.gen
	o.mu.Unlock()

	l := o.log().With().Str("asset_id", string(rr.Asset.ID)).Logger()
	start := time.Now()
	var res report.ExportResult
	rep, err := o.Builder.Build(&rr.Result, report.Metadata{PatientName: patientName, Type: desc})
	if err == nil {
		res, err = o.Exporter.Export(ctx, rep)
	}
	metrics.ObserveStage(string(StageExport), start)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		metrics.RecordStage(string(StageExport), metrics.OutcomeStale)
		return report.ExportResult{}, ErrStaleSession
	}
	o.state = rr
	if err != nil {
		o.notice = "Export failed: " + err.Error()
		o.mu.Unlock()
		metrics.RecordStage(string(StageExport), metrics.OutcomeFailure)
		l.Warn().Err(err).Msg("export failed")
		o.recordFailure(ctx, StageExport, err, map[string]any{"asset_id": rr.Asset.ID})
		return report.ExportResult{}, err
	}
	o.notice = res.Notice
	o.mu.Unlock()

	metrics.RecordStage(string(StageExport), metrics.OutcomeSuccess)
	l.Info().
		Str("report_id", string(res.ReportID)).
		Str("file", res.FileName).
		Bool("shared", res.Shared).
		Msg("report exported")
	return res, nil
}

// Reset drops every entity and returns to Idle. In-flight stages keep
// running but their completions are discarded.
func (o *Orchestrator) Reset() {
	o.init()
	o.mu.Lock()
	o.gen++
	o.state = Idle{}
	o.selecting = false
	o.notice = ""
	o.mu.Unlock()
	l := o.log()
	l.Debug().Msg("session reset")
}

//
// ==== persistence helpers ====
//

func (o *Orchestrator) recordHistory(ctx context.Context, asset media.Asset, res analysis.Result) {
	if o.History == nil {
		return
	}
	rec := &history.Record{
		ID:        history.RecordID(uuid.NewString()),
		SessionID: o.id,
		AssetID:   string(asset.ID),
		TypeID:    res.Request.TypeID,
		MediaKind: string(res.Kind),
		MediaURL:  res.Upload.URL,
		Prompt:    res.Request.Prompt,
		Result:    res.Raw,
		CreatedAt: res.CompletedAt,
	}
	if err := o.History.Save(context.WithoutCancel(ctx), rec); err != nil {
		l := o.log()
		l.Error().Err(err).Msg("failed to save analysis history")
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, stage Stage, cause error, details map[string]any) {
	if o.Failures == nil {
		return
	}
	raw, _ := json.Marshal(details)
	f := &failures.Failure{
		SessionID:   o.id,
		Stage:       string(stage),
		Message:     cause.Error(),
		DetailsJSON: string(raw),
		CreatedAt:   o.Clock.Now(),
	}
	if err := o.Failures.Save(context.WithoutCancel(ctx), f); err != nil {
		l := o.log()
		l.Error().Err(err).Str("stage", string(stage)).Msg("failed to save stage failure")
	}
}

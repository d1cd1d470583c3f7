package pipeline

import (
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// Stage names the boundary at which a session failed.
type Stage string

const (
	StageSelect  Stage = "select"
	StageUpload  Stage = "upload"
	StageAnalyze Stage = "analyze"
	StageExport  Stage = "export"
)

// Phase is the name of a state variant.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseMediaSelected Phase = "media_selected"
	PhaseUploading     Phase = "uploading"
	PhaseAnalyzing     Phase = "analyzing"
	PhaseResultReady   Phase = "result_ready"
	PhaseExporting     Phase = "exporting"
	PhaseFailed        Phase = "failed"
)

// State is a closed sum type; each variant carries only the data valid in
// that state.
type State interface {
	Phase() Phase
	sealed()
}

type Idle struct{}

type MediaSelected struct {
	Asset media.Asset
}

type Uploading struct {
	Asset   media.Asset
	Request analysis.Request
}

type Analyzing struct {
	Asset   media.Asset
	Upload  analysis.UploadResult
	Request analysis.Request
}

type ResultReady struct {
	Asset  media.Asset
	Result analysis.Result
}

type Exporting struct {
	Asset  media.Asset
	Result analysis.Result
}

// Failed keeps whatever earlier stages produced so a retry can resume.
// Upload is nil when the upload itself failed.
type Failed struct {
	Stage   Stage
	Cause   error
	Asset   media.Asset
	Upload  *analysis.UploadResult
	Request analysis.Request
}

func (Idle) Phase() Phase          { return PhaseIdle }
func (MediaSelected) Phase() Phase { return PhaseMediaSelected }
func (Uploading) Phase() Phase     { return PhaseUploading }
func (Analyzing) Phase() Phase     { return PhaseAnalyzing }
func (ResultReady) Phase() Phase   { return PhaseResultReady }
func (Exporting) Phase() Phase     { return PhaseExporting }
func (Failed) Phase() Phase        { return PhaseFailed }

func (Idle) sealed()          {}
func (MediaSelected) sealed() {}
func (Uploading) sealed()     {}
func (Analyzing) sealed()     {}
func (ResultReady) sealed()   {}
func (Exporting) sealed()     {}
func (Failed) sealed()        {}

// busy reports whether a network-bound stage owns the session.
func busy(s State) bool {
	switch s.(type) {
	case Uploading, Analyzing, Exporting:
		return true
	}
	return false
}

// Snapshot is a flattened, JSON-friendly view of a session.
type Snapshot struct {
	SessionID  string                 `json:"session_id"`
	Phase      Phase                  `json:"phase"`
	Stage      Stage                  `json:"failed_stage,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Notice     string                 `json:"notice,omitempty"`
	Busy       bool                   `json:"busy"`
	Asset      *media.Asset           `json:"asset,omitempty"`
	Upload     *analysis.UploadResult `json:"upload,omitempty"`
	Request    *analysis.Request      `json:"request,omitempty"`
	Result     *analysis.Result       `json:"result,omitempty"`
	Generation uint64                 `json:"generation"`
	TakenAt    time.Time              `json:"taken_at"`
}

func describe(s State) Snapshot {
	snap := Snapshot{Phase: s.Phase(), Busy: busy(s)}
	switch v := s.(type) {
	case MediaSelected:
		snap.Asset = &v.Asset
	case Uploading:
		snap.Asset, snap.Request = &v.Asset, &v.Request
	case Analyzing:
		snap.Asset, snap.Upload, snap.Request = &v.Asset, &v.Upload, &v.Request
	case ResultReady:
		snap.Asset, snap.Result = &v.Asset, &v.Result
		snap.Upload, snap.Request = &v.Result.Upload, &v.Result.Request
	case Exporting:
		snap.Asset, snap.Result = &v.Asset, &v.Result
		snap.Upload, snap.Request = &v.Result.Upload, &v.Result.Request
	case Failed:
		snap.Asset, snap.Upload, snap.Request = &v.Asset, v.Upload, &v.Request
		snap.Stage = v.Stage
		if v.Cause != nil {
			snap.Error = v.Cause.Error()
		}
	}
	return snap
}

package report

import (
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// ID identifies one build of a report.
type ID string

// Metadata is supplied by the caller at export time.
type Metadata struct {
	PatientName string
	Type        analysis.TypeDescriptor
}

// Content is the deterministic part of a report: the same result and
// metadata always produce the same Content.
type Content struct {
	PatientName   string             `json:"patient_name"`
	AnalysisLabel string             `json:"analysis_label"`
	AccentColor   string             `json:"accent_color"`
	MediaURL      string             `json:"media_url"`
	MediaKind     media.Kind         `json:"media_kind"`
	AnalyzedAt    time.Time          `json:"analyzed_at"`
	Findings      []analysis.Segment `json:"findings"`
	Placeholder   bool               `json:"placeholder,omitempty"`
	Disclaimer    string             `json:"disclaimer"`
}

// Report is built fresh for every export and never stored.
type Report struct {
	ID          ID        `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Content     Content   `json:"content"`
	Markdown    string    `json:"-"`

	// Header and Footer are the markdown around the findings section.
	Header string `json:"-"`
	Footer string `json:"-"`
}

// ExportResult describes where the document ended up.
type ExportResult struct {
	ReportID ID     `json:"report_id"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	Pages    int    `json:"pages"`
	Shared   bool   `json:"shared"`
	ShareURL string `json:"share_url,omitempty"`
	Saved    bool   `json:"saved"`
	Notice   string `json:"notice"`
}

package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	domain "github.com/bryanwahyu/mediscan/internal/domain/report"
)

const (
	defaultAccent = "#EF4444"
	notAvailable  = "Not Available"
)

// Builder assembles a Report from the current analysis result.
// A fresh ID and timestamp are minted on every call.
type Builder struct {
	Clock   application.Clock
	Product string

	// NewID overrides report id generation in tests
	NewID func() domain.ID
}

// NewBuilder returns a builder using the system clock.
func NewBuilder(product string) *Builder {
	return &Builder{Clock: application.SystemClock{}, Product: product}
}

// Build renders the report for result. A nil result is a build-time error.
func (b *Builder) Build(result *analysis.Result, meta domain.Metadata) (*domain.Report, error) {
	if result == nil {
		return nil, domain.ErrNoResult
	}
	clock := b.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}

	r := &domain.Report{
		ID:          b.id(),
		GeneratedAt: clock.Now(),
		Content:     BuildContent(result, meta),
	}

	view := documentView{Report: r, Product: b.product()}
	var err error
	if r.Header, err = render(headerTmpl, view); err != nil {
		return nil, err
	}
	if r.Footer, err = render(footerTmpl, view); err != nil {
		return nil, err
	}
	r.Markdown = r.Header + "\n" + r.Content.Markdown() + "\n" + r.Footer
	return r, nil
}

func render(tmpl *template.Template, view documentView) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render report %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// BuildContent derives the deterministic content section of a report.
func BuildContent(result *analysis.Result, meta domain.Metadata) domain.Content {
	label := strings.TrimSpace(meta.Type.Label)
	if label == "" {
		label = "Medical " + result.Kind.Title() + " Analysis"
	}
	accent := meta.Type.Color
	if accent == "" {
		accent = defaultAccent
	}
	segments := result.Segments
	if segments == nil {
		segments = analysis.Format(result.Raw)
	}
	return domain.Content{
		PatientName:   strings.TrimSpace(meta.PatientName),
		AnalysisLabel: label,
		AccentColor:   accent,
		MediaURL:      result.Upload.URL,
		MediaKind:     result.Kind,
		AnalyzedAt:    result.CompletedAt,
		Findings:      segments,
		Placeholder:   strings.TrimSpace(result.Raw) == "",
		Disclaimer:    domain.Disclaimer(result.Kind),
	}
}

func (b *Builder) id() domain.ID {
	if b.NewID != nil {
		return b.NewID()
	}
	return NewReportID()
}

func (b *Builder) product() string {
	if b.Product == "" {
		return "mediscan"
	}
	return b.Product
}

// NewReportID returns a short uppercase random id.
func NewReportID() domain.ID {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.ID(strings.ToUpper(raw[:13]))
}

type documentView struct {
	*domain.Report
	Product string
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "|", `\|`,
	"#", `\#`, "[", `\[`, "]", `\]`, "<", `\<`, "`", "\\`",
)

var funcs = template.FuncMap{
	"md": mdEscaper.Replace,
	"orNA": func(s string) string {
		if s == "" {
			return notAvailable
		}
		return s
	},
	"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
}

var headerTmpl = template.Must(template.New("header").Funcs(funcs).Parse(`# {{md .Content.AnalysisLabel}}

Medical {{.Content.MediaKind.Title}} Analysis Report

| Field | Value |
| --- | --- |
| Patient Name | {{md (orNA .Content.PatientName)}} |
| Analysis Type | {{md .Content.AnalysisLabel}} |
| Report Date | {{date .GeneratedAt}} |
| Report ID | #{{.ID}} |

## {{.Content.MediaKind.Title}} Information

**{{.Content.MediaKind.Title}} URL:** {{md (orNA .Content.MediaURL)}}

**Analysis Timestamp:** {{stamp .Content.AnalyzedAt}}
`))

var footerTmpl = template.Must(template.New("footer").Funcs(funcs).Parse(`---

Generated by {{md .Product}} on {{date .GeneratedAt}}
`))

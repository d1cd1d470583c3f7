// Package export renders reports to PDF, places them in the export
// directory and hands them to a share surface.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/mediscan/internal/domain/report"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
)

// Service implements report.Exporter.
type Service struct {
	Dir      string
	Renderer Renderer
	Sharer   report.Sharer // optional
	Logger   *zerolog.Logger
}

var _ report.Exporter = (*Service)(nil)

func NewService(dir string, renderer Renderer, sharer report.Sharer) *Service {
	return &Service{Dir: dir, Renderer: renderer, Sharer: sharer}
}

func (s *Service) log(ctx context.Context) zerolog.Logger {
	if s.Logger != nil {
		return *s.Logger
	}
	return xlog.FromContext(ctx).With().Str("component", "export").Logger()
}

// Export renders, verifies and atomically places the PDF, then tries to
// share it. Sharing problems are not errors: the file is already saved and
// the result carries a notice instead.
func (s *Service) Export(ctx context.Context, r *report.Report) (report.ExportResult, error) {
	if r == nil {
		return report.ExportResult{}, report.ErrNoResult
	}
	logger := s.log(ctx)

	data, err := s.Renderer.Render(r)
	if err != nil {
		return report.ExportResult{}, &report.ExportError{Phase: report.PhaseRender, Cause: err}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return report.ExportResult{}, &report.ExportError{Phase: report.PhasePlace, Cause: err}
	}
	name := FileName(r.Content, r.GeneratedAt)
	path := filepath.Join(s.Dir, name)

	pages, err := place(path, data)
	if err != nil {
		return report.ExportResult{}, err
	}

	res := report.ExportResult{
		ReportID: r.ID,
		Path:     path,
		FileName: name,
		Pages:    pages,
		Saved:    true,
	}
	logger.Debug().Str("path", path).Int("pages", pages).Msg("report placed")

	if s.Sharer == nil || !s.Sharer.Available() {
		res.Notice = "Report saved to " + path
		return res, nil
	}
	url, err := s.Sharer.Share(ctx, path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("share failed, report kept locally")
		res.Notice = fmt.Sprintf("Report saved to %s (sharing failed: %v)", path, err)
		return res, nil
	}
	res.Shared = true
	res.ShareURL = url
	res.Notice = "Report saved and shared"
	return res, nil
}

// place writes data next to path, checks it parses as a PDF, then renames
// it into place. A document that fails the check is never placed.
func place(path string, data []byte) (int, error) {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, &report.ExportError{Phase: report.PhasePlace, Cause: err}
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return 0, &report.ExportError{Phase: report.PhasePlace, Cause: err}
	}

	pdfCtx, err := api.ReadContextFile(pending.Name())
	if err != nil {
		return 0, &report.ExportError{Phase: report.PhaseRender, Cause: fmt.Errorf("verify pdf: %w", err)}
	}
	if pdfCtx.PageCount < 1 {
		return 0, &report.ExportError{Phase: report.PhaseRender, Cause: fmt.Errorf("verify pdf: no pages")}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, &report.ExportError{Phase: report.PhasePlace, Cause: err}
	}
	return pdfCtx.PageCount, nil
}

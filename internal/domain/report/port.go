package report

import "context"

// Exporter turns a report into a portable file and hands it to the share
// surface.
type Exporter interface {
	Export(ctx context.Context, r *Report) (ExportResult, error)
}

// Sharer is a platform share/save surface. Available lets the exporter fall
// back to a local "saved" notice when sharing is impossible.
type Sharer interface {
	Available() bool
	Share(ctx context.Context, path string) (string, error)
}

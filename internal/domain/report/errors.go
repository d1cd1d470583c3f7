package report

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is a build-time error: there is no analysis to report on.
	ErrNoResult = errors.New("no analysis result to build a report from")

	ErrExportFailed = errors.New("export failed")
)

// Phase names the export step that failed.
type Phase string

const (
	PhaseRender Phase = "render"
	PhasePlace  Phase = "place"
	PhaseShare  Phase = "share"
)

// ExportError wraps the cause of a failed export.
type ExportError struct {
	Phase Phase
	Cause error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed during %s: %v", e.Phase, e.Cause)
}

func (e *ExportError) Unwrap() []error { return []error{ErrExportFailed, e.Cause} }

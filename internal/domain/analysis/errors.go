package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrUploadFailed   = errors.New("upload failed")
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrUnknownType is returned for ids missing from the catalog.
	ErrUnknownType = errors.New("unknown analysis type")
)

// UploadError wraps the cause of a failed upload.
type UploadError struct {
	Status int // HTTP status, 0 for transport errors
	Cause  error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed: status %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("upload failed: %v", e.Cause)
}

func (e *UploadError) Unwrap() []error { return []error{ErrUploadFailed, e.Cause} }

// FailureKind subdivides analysis failures.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureStatus    FailureKind = "status"
	FailureMalformed FailureKind = "malformed"
)

// AnalysisError wraps the cause of a failed inference call.
type AnalysisError struct {
	Kind   FailureKind
	Status int
	Cause  error
}

func (e *AnalysisError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("analysis failed (%s, status %d): %v", e.Kind, e.Status, e.Cause)
	}
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Cause)
}

func (e *AnalysisError) Unwrap() []error { return []error{ErrAnalysisFailed, e.Cause} }

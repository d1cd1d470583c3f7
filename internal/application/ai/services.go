package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

// DefaultTimeout bounds one inference call when none is configured.
const DefaultTimeout = 60 * time.Second

// Service bounds every inference call with a deadline so the pipeline can
// never hang in Analyzing.
type Service struct {
	client  analysis.Client
	timeout time.Duration
}

var _ analysis.Client = (*Service)(nil)

func NewService(client analysis.Client, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{client: client, timeout: timeout}
}

// Analyze forwards req to the backend. A deadline hit is reported as a
// transport failure.
func (s *Service) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (string, error) {
	if req.MediaURL == "" {
		return "", &analysis.AnalysisError{Kind: analysis.FailureTransport, Cause: errors.New("media url is empty")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.Analyze(ctx, req)
	if err == nil {
		return out, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, analysis.ErrAnalysisFailed) {
		return "", &analysis.AnalysisError{
			Kind:  analysis.FailureTransport,
			Cause: fmt.Errorf("no response within %s: %w", s.timeout, err),
		}
	}
	return "", err
}

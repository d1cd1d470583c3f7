package failures

import "context"

// Repository defines persistence for stage failures
type Repository interface {
	Save(ctx context.Context, f *Failure) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Failure, error)
}

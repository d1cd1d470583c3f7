package history

import "context"

// Repository port for persisting and querying completed analyses
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Paginate(ctx context.Context, page, pageSize int) ([]*Record, error)
	LatestBySession(ctx context.Context, sessionID string) (*Record, error)
}

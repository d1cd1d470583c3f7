package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	domain "github.com/bryanwahyu/mediscan/internal/domain/failures"
)

type FailureRepository struct {
	db *sql.DB
}

var _ domain.Repository = (*FailureRepository)(nil)

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.Failure) error {
	const q = `
INSERT INTO stage_failures (session_id, stage, message, details_json, created_at)
VALUES (?,?,?,?,?)
`
	details := f.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		details = string(b)
	}
	res, err := r.db.ExecContext(ctx, q, f.SessionID, f.Stage, f.Message, details, toMillis(f.CreatedAt))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

func (r *FailureRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, stage, message, details_json, created_at
FROM stage_failures
WHERE session_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Failure
	for rows.Next() {
		var f domain.Failure
		var created int64
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Stage, &f.Message, &f.DetailsJSON, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = fromMillis(created)
		out = append(out, &f)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/failures"
)

type FailureRepository struct {
	db *sql.DB
}

var _ domain.Repository = (*FailureRepository)(nil)

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.Failure) error {
	const q = `
INSERT INTO stage_failures
  (session_id, stage, message, details_json, created_at)
VALUES ($1,$2,$3,$4::jsonb,$5)
RETURNING id;
`
	msg := f.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := f.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		details = string(b)
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return r.db.QueryRowContext(ctx, q, stringOrDash(f.SessionID), stringOrDash(f.Stage), msg, details, created).Scan(&f.ID)
}

func (r *FailureRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, stage, message, details_json::text, created_at
FROM stage_failures
WHERE session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Failure
	for rows.Next() {
		var f domain.Failure
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Stage, &f.Message, &f.DetailsJSON, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

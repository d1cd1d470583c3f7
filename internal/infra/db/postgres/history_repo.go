package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/history"
)

type HistoryRepository struct {
	db *sql.DB
}

var _ domain.Repository = (*HistoryRepository)(nil)

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts or updates an analysis record
func (r *HistoryRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO analysis_history
  (id, session_id, asset_id, type_id, media_kind, media_url, prompt, result, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  media_url=EXCLUDED.media_url,
  prompt=EXCLUDED.prompt,
  result=EXCLUDED.result;
`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, stringOrDash(rec.SessionID), stringOrDash(rec.AssetID), stringOrDash(rec.TypeID),
		stringOrDash(rec.MediaKind), rec.MediaURL, rec.Prompt, rec.Result, createdAt)
	return err
}

// Paginate returns a page of records ordered by created_at desc
func (r *HistoryRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, session_id, asset_id, type_id, media_kind, media_url, prompt, result, created_at
FROM analysis_history
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.AssetID, &rec.TypeID, &rec.MediaKind,
			&rec.MediaURL, &rec.Prompt, &rec.Result, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// LatestBySession returns the latest record for a session, nil if none
func (r *HistoryRepository) LatestBySession(ctx context.Context, sessionID string) (*domain.Record, error) {
	const q = `
SELECT id, session_id, asset_id, type_id, media_kind, media_url, prompt, result, created_at
FROM analysis_history
WHERE session_id=$1
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	var rec domain.Record
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&rec.ID, &rec.SessionID, &rec.AssetID, &rec.TypeID,
		&rec.MediaKind, &rec.MediaURL, &rec.Prompt, &rec.Result, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/mediscan/internal/domain/history"
)

type HistoryRepository struct {
	db *sql.DB
}

var _ domain.Repository = (*HistoryRepository)(nil)

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, session_id, asset_id, type_id, media_kind, media_url, prompt, result, created_at`

func (r *HistoryRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO analysis_history (` + historyColumns + `)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  media_url=excluded.media_url, prompt=excluded.prompt, result=excluded.result;
`
	_, err := r.db.ExecContext(ctx, q, rec.ID, rec.SessionID, rec.AssetID, rec.TypeID, rec.MediaKind,
		rec.MediaURL, rec.Prompt, rec.Result, toMillis(rec.CreatedAt))
	return err
}

func (r *HistoryRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	const q = `
SELECT ` + historyColumns + `
FROM analysis_history
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) LatestBySession(ctx context.Context, sessionID string) (*domain.Record, error) {
	const q = `
SELECT ` + historyColumns + `
FROM analysis_history
WHERE session_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.Record, error) {
	var rec domain.Record
	var created int64
	if err := s.Scan(&rec.ID, &rec.SessionID, &rec.AssetID, &rec.TypeID, &rec.MediaKind,
		&rec.MediaURL, &rec.Prompt, &rec.Result, &created); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(created)
	return &rec, nil
}

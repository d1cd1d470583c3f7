package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/domain/failures"
	"github.com/bryanwahyu/mediscan/internal/domain/history"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "mediscan.db"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrate is idempotent")
	return db
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(openTestDB(t))
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, repo.Save(ctx, &history.Record{
			ID:        history.RecordID(id),
			SessionID: "s1",
			AssetID:   "a1",
			TypeID:    "ecg",
			MediaKind: "video",
			MediaURL:  "https://res.test/" + id,
			Prompt:    "p",
			Result:    "result " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := repo.Paginate(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, history.RecordID("r3"), page[0].ID)
	assert.Equal(t, history.RecordID("r2"), page[1].ID)
	assert.True(t, page[0].CreatedAt.Equal(base.Add(2*time.Minute)))

	page, err = repo.Paginate(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "result r1", page[0].Result)

	latest, err := repo.LatestBySession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, history.RecordID("r3"), latest.ID)

	none, err := repo.LatestBySession(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFailureRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFailureRepository(openTestDB(t))
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	f1 := &failures.Failure{SessionID: "s1", Stage: "upload", Message: "status 502", DetailsJSON: `{"asset_id":"a1"}`, CreatedAt: at}
	f2 := &failures.Failure{SessionID: "s1", Stage: "analyze", Message: "timeout", DetailsJSON: "not json", CreatedAt: at.Add(time.Second)}
	require.NoError(t, repo.Save(ctx, f1))
	require.NoError(t, repo.Save(ctx, f2))
	require.NoError(t, repo.Save(ctx, &failures.Failure{SessionID: "s2", Stage: "export", Message: "x", CreatedAt: at}))
	assert.NotZero(t, f1.ID)

	rows, err := repo.ListBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "analyze", rows[0].Stage)
	assert.JSONEq(t, `{"raw":"not json"}`, rows[0].DetailsJSON)
	assert.Equal(t, "upload", rows[1].Stage)
	assert.JSONEq(t, `{"asset_id":"a1"}`, rows[1].DetailsJSON)
}

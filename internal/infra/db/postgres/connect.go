package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_history (
  id          TEXT        PRIMARY KEY,
  session_id  TEXT        NOT NULL,
  asset_id    TEXT        NOT NULL,
  type_id     TEXT        NOT NULL,
  media_kind  TEXT        NOT NULL,
  media_url   TEXT        NOT NULL,
  prompt      TEXT        NOT NULL,
  result      TEXT        NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_history_session ON analysis_history (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS stage_failures (
  id           BIGSERIAL   PRIMARY KEY,
  session_id   TEXT        NOT NULL,
  stage        TEXT        NOT NULL,
  message      TEXT        NOT NULL,
  details_json JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_failures_session ON stage_failures (session_id, created_at)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

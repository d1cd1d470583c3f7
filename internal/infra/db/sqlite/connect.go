package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// Config holds SQLite pool parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second, MaxOpenConns: 4}
}

// Open opens path with WAL journaling and a busy timeout applied to every
// pooled connection.
func Open(ctx context.Context, path string, cfg Config) (*sql.DB, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_history (
  id          TEXT    PRIMARY KEY,
  session_id  TEXT    NOT NULL,
  asset_id    TEXT    NOT NULL,
  type_id     TEXT    NOT NULL,
  media_kind  TEXT    NOT NULL,
  media_url   TEXT    NOT NULL,
  prompt      TEXT    NOT NULL,
  result      TEXT    NOT NULL,
  created_at  INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_history_session ON analysis_history (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS stage_failures (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id   TEXT    NOT NULL,
  stage        TEXT    NOT NULL,
  message      TEXT    NOT NULL,
  details_json TEXT    NOT NULL DEFAULT '{}',
  created_at   INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_failures_session ON stage_failures (session_id, created_at)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// timestamps are stored as unix milliseconds
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

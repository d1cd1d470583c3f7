package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  id          VARCHAR(64)  NOT NULL PRIMARY KEY,
  session_id  VARCHAR(64)  NOT NULL,
  asset_id    VARCHAR(64)  NOT NULL,
  type_id     VARCHAR(64)  NOT NULL,
  media_kind  VARCHAR(16)  NOT NULL,
  media_url   TEXT         NOT NULL,
  prompt      TEXT         NOT NULL,
  result      MEDIUMTEXT   NOT NULL,
  created_at  DATETIME(3)  NOT NULL,
  INDEX idx_history_session (session_id, created_at),
  INDEX idx_history_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS stage_failures (
  id           BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  session_id   VARCHAR(64)  NOT NULL,
  stage        VARCHAR(16)  NOT NULL,
  message      TEXT         NOT NULL,
  details_json JSON         NOT NULL,
  created_at   DATETIME(3)  NOT NULL,
  INDEX idx_failures_session (session_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}

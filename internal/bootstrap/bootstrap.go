// Package bootstrap builds the adapters shared by the mediscan binaries from
// a loaded config.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/mediscan/internal/application"
	appai "github.com/bryanwahyu/mediscan/internal/application/ai"
	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	reportapp "github.com/bryanwahyu/mediscan/internal/application/report"
	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/failures"
	"github.com/bryanwahyu/mediscan/internal/domain/history"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
	"github.com/bryanwahyu/mediscan/internal/infra/ai/inference"
	openaiclient "github.com/bryanwahyu/mediscan/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/mediscan/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/mediscan/internal/infra/db/postgres"
	sqlitep "github.com/bryanwahyu/mediscan/internal/infra/db/sqlite"
	"github.com/bryanwahyu/mediscan/internal/infra/export"
	"github.com/bryanwahyu/mediscan/internal/infra/selector"
	"github.com/bryanwahyu/mediscan/internal/infra/share"
	"github.com/bryanwahyu/mediscan/internal/infra/storage"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

// Components are the long-lived adapters behind every session.
type Components struct {
	DB       *sql.DB
	History  history.Repository
	Failures failures.Repository
	Store    *storage.MinioStore
	Uploader analysis.Uploader
	Analyzer analysis.Client
	Builder  *reportapp.Builder
	Exporter *export.Service
	Catalog  *analysis.Catalog
	Probe    selector.Prober
	Limits   media.Limits
	Checks   map[string]middleware.HealthChecker
}

// Build wires storage, inference, persistence and export from cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{
		Checks:  map[string]middleware.HealthChecker{},
		Builder: reportapp.NewBuilder(cfg.Export.Product),
		Catalog: analysis.DefaultCatalog(),
		Limits:  media.Limits{MaxDuration: cfg.Selector.MaxVideoDuration, MaxSize: cfg.Selector.MaxSize},
	}

	// database (optional)
	db, hist, fails, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.DB, c.History, c.Failures = db, hist, fails
	if db != nil {
		c.Checks["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// minio dipakai untuk upload dan/atau share laporan
	if cfg.Storage.Provider == "minio" || cfg.Export.Share == "minio" {
		store, err := storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			Region:    cfg.Storage.Minio.Region,
			Bucket:    cfg.Storage.Minio.BucketName,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			UseSSL:    cfg.Storage.Minio.UseSSL,
			Expiry:    cfg.Storage.Minio.LinkExpiry,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		c.Store = store
		c.Checks["storage"] = middleware.CheckFunc(func(context.Context) error {
			if !store.Available() {
				return errors.New("minio unavailable")
			}
			return nil
		})
	}

	if c.Uploader, err = NewUploader(cfg, c.Store); err != nil {
		c.Close()
		return nil, err
	}
	if c.Analyzer, err = NewAnalyzer(cfg); err != nil {
		c.Close()
		return nil, err
	}

	var sharer report.Sharer
	switch cfg.Export.Share {
	case "minio":
		sharer = c.Store
	case "opener":
		sharer = share.NewOpener()
	}
	c.Exporter = export.NewService(cfg.Export.Dir, export.PDFRenderer{Product: cfg.Export.Product}, sharer)

	if p, err := selector.NewFFProbe(); err == nil {
		c.Probe = p
	} else {
		logger.Warn().Err(err).Msg("video duration limit not enforced")
	}
	return c, nil
}

// Orchestrator returns a fresh session pipeline reading media from sel.
func (c *Components) Orchestrator(sel media.Selector) *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Selector: sel,
		Uploader: c.Uploader,
		Analyzer: c.Analyzer,
		Builder:  c.Builder,
		Exporter: c.Exporter,
		Catalog:  c.Catalog,
		Clock:    application.SystemClock{},
		History:  c.History,
		Failures: c.Failures,
		Limits:   c.Limits,
	}
}

// Close releases the database handle, if any.
func (c *Components) Close() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

// OpenDatabase connects and migrates the configured driver. Driver "none"
// returns nil repositories.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, history.Repository, failures.Repository, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Database.Driver {
	case "mysql":
		if db, err = mysqlp.Connect(ctx, cfg.MySQLDSN()); err == nil {
			if err = mysqlp.Migrate(ctx, db); err == nil {
				return db, mysqlp.NewHistoryRepository(db), mysqlp.NewFailureRepository(db), nil
			}
		}
	case "postgres":
		if db, err = postgresp.Connect(ctx, cfg.PostgresDSN()); err == nil {
			if err = postgresp.Migrate(ctx, db); err == nil {
				return db, postgresp.NewHistoryRepository(db), postgresp.NewFailureRepository(db), nil
			}
		}
	case "sqlite":
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o750); err != nil {
			break
		}
		if db, err = sqlitep.Open(ctx, cfg.Database.Path, sqlitep.DefaultConfig()); err == nil {
			if err = sqlitep.Migrate(ctx, db); err == nil {
				return db, sqlitep.NewHistoryRepository(db), sqlitep.NewFailureRepository(db), nil
			}
		}
	default:
		return nil, nil, nil, nil
	}
	if db != nil {
		_ = db.Close()
	}
	return nil, nil, nil, fmt.Errorf("%s: %w", cfg.Database.Driver, err)
}

// NewUploader returns the minio store or a Cloudinary unsigned uploader.
func NewUploader(cfg *config.Config, store *storage.MinioStore) (analysis.Uploader, error) {
	if cfg.Storage.Provider == "minio" {
		if store == nil {
			return nil, errors.New("minio storage not initialised")
		}
		return store, nil
	}
	opts := []storage.CloudinaryOption{storage.WithFolder(cfg.Storage.Cloudinary.Folder)}
	if cfg.Storage.Cloudinary.BaseURL != "" {
		opts = append(opts, storage.WithBaseURL(cfg.Storage.Cloudinary.BaseURL))
	}
	return storage.NewCloudinary(cfg.Storage.Cloudinary.CloudName, cfg.Storage.Cloudinary.UploadPreset, opts...)
}

// NewAnalyzer returns the configured inference client behind the timeout
// and metrics service.
func NewAnalyzer(cfg *config.Config) (analysis.Client, error) {
	var client analysis.Client
	switch cfg.Analysis.Provider {
	case "openai":
		client = openaiclient.NewClient(cfg.Analysis.OpenAI.APIKey, cfg.Analysis.OpenAI.BaseURL, cfg.Analysis.OpenAI.Model)
	default:
		c, err := inference.NewClient(cfg.Analysis.Endpoint)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return appai.NewService(client, cfg.Analysis.Timeout), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	"github.com/bryanwahyu/mediscan/internal/bootstrap"
	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/infra/httpserver"
	"github.com/bryanwahyu/mediscan/internal/infra/selector"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

func main() {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	xlog.Configure(xlog.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty, Service: "mediscan-api"})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	staging, err := selector.NewStaged(cfg.Server.StagingDir, deps.Probe)
	if err != nil {
		return err
	}

	registry := httpserver.NewRegistry(func(id string) *pipeline.Orchestrator {
		return deps.Orchestrator(staging).WithSessionID(id)
	}, cfg.Server.MaxSessions)

	handler := httpserver.NewRouter(httpserver.Deps{
		Sessions:    registry,
		Staging:     staging,
		Catalog:     deps.Catalog,
		History:     deps.History,
		Failures:    deps.Failures,
		MaxUpload:   cfg.Selector.MaxSize,
		Health:      deps.Checks,
		APIKeys:     cfg.Auth.APIKeys,
		RateLimit:   middleware.RateLimitConfig{RequestLimit: cfg.RateLimit.Requests, WindowSize: cfg.RateLimit.Window},
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).
			Str("storage", cfg.Storage.Provider).
			Str("analysis", cfg.Analysis.Provider).
			Str("database", cfg.Database.Driver).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// graceful shutdown
	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

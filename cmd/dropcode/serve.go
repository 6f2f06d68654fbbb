package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavel-fokin/dropcode/internal/content"
	"github.com/pavel-fokin/dropcode/internal/fs"
	"github.com/pavel-fokin/dropcode/internal/janitor"
	"github.com/pavel-fokin/dropcode/internal/postgres"
	"github.com/pavel-fokin/dropcode/internal/server"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the HTTP service and the maintenance jobs.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *server.Config) error {
	logger, err := server.NewLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	repo, err := openStore(ctx, cfg.StoreURL)
	if err != nil {
		logger.Error("Failed to open content store", "error", err)
		return err
	}
	defer repo.Close()

	storage, err := fs.NewDiskStorage(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open blob storage", "error", err, "dir", cfg.DataDir)
		return err
	}

	svc := content.NewService(storage, repo, cfg.Retention,
		content.WithCache(content.NewCache(cfg.CacheSize, cfg.CacheTTL)),
		content.WithLogger(logger),
	)

	jobs := janitor.New(svc, cfg.PurgeInterval, cfg.SweepInterval, logger)
	jobs.Start(ctx)
	defer jobs.Stop()

	srv := server.New(cfg, svc, storage.HTTPFileSystem())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr, "store", storeKind(cfg.StoreURL), "data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		return err
	}
	return nil
}

func storeKind(url string) string {
	if postgres.IsURL(url) {
		return "postgres"
	}
	return "sqlite"
}

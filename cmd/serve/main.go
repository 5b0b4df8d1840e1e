// Command serve exposes health, metrics and a read-only export of the
// announcement store over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httpadapter "github.com/couchcryptid/rail-notice-etl/internal/adapter/http"
	"github.com/couchcryptid/rail-notice-etl/internal/config"
	"github.com/couchcryptid/rail-notice-etl/internal/observability"
	"github.com/couchcryptid/rail-notice-etl/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	store := storage.NewFileStore(storage.Options{
		Path:      cfg.StorePath,
		BackupDir: cfg.StoreBackupDir,
	}, logger.Named("store"))

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

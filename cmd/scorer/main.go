package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/sensor-model-pipeline/internal/adapter/blobstore"
	httpadapter "github.com/couchcryptid/sensor-model-pipeline/internal/adapter/http"
	"github.com/couchcryptid/sensor-model-pipeline/internal/app"
	"github.com/couchcryptid/sensor-model-pipeline/internal/config"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/serving"
)

const modelLoadTimeout = 30 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := app.OpenArtifactStore(cfg)
	if err != nil {
		logger.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	// The model is loaded once; a failed load still starts the service so
	// /health can report it.
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), modelLoadTimeout)
	predictor := serving.LoadPredictor(loadCtx, blobstore.NewArtifactStore(store, cfg.ArtifactPath), nil, logger)
	cancelLoad()

	scoring := httpadapter.NewScoringServer(cfg.ScoringAddr, predictor, cfg.ServiceVersion, nil, logger, metrics)
	ops := httpadapter.NewOpsServer(cfg.HTTPAddr, predictor, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := scoring.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("scoring server error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := ops.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := scoring.Shutdown(shutdownCtx); err != nil {
		logger.Error("scoring server shutdown error", "error", err)
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

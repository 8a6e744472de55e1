package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/sensor-model-pipeline/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sensor-model-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/sensor-model-pipeline/internal/app"
	"github.com/couchcryptid/sensor-model-pipeline/internal/config"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/pipeline"
)

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

	stores, err := app.OpenStores(cfg)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}

	// Model-published events are feature-flagged via KAFKA_ENABLED.
	var opts []pipeline.Option
	var notifier *kafkaadapter.Notifier
	if cfg.KafkaEnabled {
		notifier = kafkaadapter.NewNotifier(cfg, logger)
		opts = append(opts, pipeline.WithNotifier(notifier))
		logger.Info("model published events enabled", "topic", cfg.KafkaModelTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("model published events disabled")
	}

	p := app.NewPipeline(cfg, stores, logger, metrics, opts...)
	sched := pipeline.NewScheduler(p, clockwork.NewRealClock(), cfg.RetrainInterval, cfg.PollInterval, logger)

	status := func() httpadapter.CycleStatus {
		return httpadapter.CycleStatus{
			State:   p.State().String(),
			LastRun: sched.LastRun(),
			NextRun: sched.NextRun(),
		}
	}
	srv := httpadapter.NewOpsServer(cfg.HTTPAddr, p, status, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("retraining scheduler started",
		"retrain_interval", cfg.RetrainInterval,
		"poll_interval", cfg.PollInterval,
		"store_backend", cfg.StoreBackend,
		"artifact_path", cfg.ArtifactPath,
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("retraining cycle did not stop before shutdown timeout")
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := stores.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

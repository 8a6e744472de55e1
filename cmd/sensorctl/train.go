package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	kafkaadapter "github.com/couchcryptid/sensor-model-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/sensor-model-pipeline/internal/app"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/pipeline"
)

var trainNoNotify bool

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one retraining cycle now",
	Long: `Loads all raw data, builds features, trains and evaluates a model and
publishes the artifact, exactly as one scheduled cycle of the pipeline
service would.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().BoolVar(&trainNoNotify, "no-notify", false, "do not send a model published event even if Kafka is enabled")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	var opts []pipeline.Option
	if cfg.KafkaEnabled && !trainNoNotify {
		notifier := kafkaadapter.NewNotifier(cfg, logger)
		defer notifier.Close()
		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	p := app.NewPipeline(cfg, stores, logger, observability.NewMetrics(), opts...)
	result, err := p.RunCycle(ctx)
	printCycleResult(cmd, result)
	return err
}

func printCycleResult(cmd *cobra.Command, r pipeline.CycleResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Outcome:       %s\n", r.Outcome)
	fmt.Fprintf(out, "Raw readings:  %d\n", r.RawReadings)
	fmt.Fprintf(out, "Feature rows:  %d\n", r.FeatureRows)
	if r.Version != "" {
		fmt.Fprintf(out, "Version:       %s\n", r.Version)
		fmt.Fprintf(out, "RMSE:          %.4f\n", r.Metrics.RMSE)
		fmt.Fprintf(out, "R2:            %.4f\n", r.Metrics.R2)
		fmt.Fprintf(out, "Test rows:     %d\n", r.Metrics.TestRows)
	}
	fmt.Fprintf(out, "Duration:      %s\n", r.Duration.Round(time.Millisecond))
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/sensor-model-pipeline/internal/config"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
)

var (
	envFile string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sensorctl",
	Short: "Operate the sensor model pipeline",
	Long: `sensorctl runs one-off tasks against the sensor model pipeline's stores:
training a model now, generating synthetic readings, validating raw data
and inspecting the published artifact. It reads the same environment
variables as the pipeline and scorer services.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
}

// loadConfig reads configuration for every subcommand. Logs go to stderr so
// command output on stdout stays clean.
func loadConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = c
	logger = observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return nil
}

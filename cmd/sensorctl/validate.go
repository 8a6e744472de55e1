package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/sensor-model-pipeline/internal/adapter/blobstore"
	"github.com/couchcryptid/sensor-model-pipeline/internal/app"
	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check raw data objects before training",
	Long: `Reads every data object under the data prefix and reports malformed lines
per object, batches and readings dropped while flattening, and whether
enough feature rows remain to train a model.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// dataReport summarizes what validateData read.
type dataReport struct {
	Objects     int
	Batches     int
	Readings    int
	FeatureRows int
	Stations    int
}

func runValidate(cmd *cobra.Command, _ []string) error {
	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	phases, report, err := validateData(cmd.Context(), stores.Data, cfg.DataPrefix, cfg.MinTrainingRows, logger, stores.DataExclusions(cfg)...)
	if err != nil {
		return err
	}
	if !printValidation(cmd.OutOrStdout(), phases, report) {
		return errValidationFailed
	}
	return nil
}

// validateData runs the decoding, completeness and volume phases over every
// data object under prefix, skipping the exclude names. Store failures are
// returned as errors, data problems as phase errors.
func validateData(ctx context.Context, store blobstore.Store, prefix string, minRows int, logger *slog.Logger, exclude ...string) ([]*phase, dataReport, error) {
	decoding := &phase{name: "Object decoding"}
	completeness := &phase{name: "Reading completeness"}
	volume := &phase{name: "Training volume"}

	names, err := blobstore.ListDataObjects(ctx, store, prefix, exclude...)
	if err != nil {
		return nil, dataReport{}, fmt.Errorf("listing %q: %w", prefix, err)
	}

	var (
		report  dataReport
		batches []domain.RawBatch
	)
	for _, name := range names {
		data, err := store.Read(ctx, name)
		if err != nil {
			return nil, dataReport{}, fmt.Errorf("reading %s: %w", name, err)
		}
		report.Objects++

		parsed, skipped, err := domain.ParseBatchLines(bytes.NewReader(data), name, logger)
		if err != nil {
			decoding.errorf("%s: unreadable after %d batches: %v", name, len(parsed), err)
		}
		if skipped > 0 {
			decoding.errorf("%s: %d malformed lines", name, skipped)
		}
		if len(parsed) == 0 && err == nil {
			decoding.errorf("%s: no batches", name)
		}
		batches = append(batches, parsed...)
	}
	if report.Objects == 0 {
		decoding.errorf("no data objects under %q", prefix)
	}
	report.Batches = len(batches)

	readings, dropped := domain.FlattenBatches(batches, logger)
	if dropped > 0 {
		completeness.errorf("%d batches or readings dropped for a bad timestamp, station_id or value", dropped)
	}
	report.Readings = len(readings)

	table := domain.BuildFeatureTable(readings)
	report.FeatureRows = table.Len()
	report.Stations = table.Stations
	if table.Len() < minRows {
		volume.errorf("%d feature rows, need at least %d", table.Len(), minRows)
	}

	return []*phase{decoding, completeness, volume}, report, nil
}

// printValidation writes the phase summary and details. It reports whether
// every phase passed.
func printValidation(w io.Writer, phases []*phase, report dataReport) bool {
	fmt.Fprintln(w, "=== Sensor Data Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-30s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d objects, %d batches, %d readings, %d stations, %d feature rows\n",
		report.Objects, report.Batches, report.Readings, report.Stations, report.FeatureRows)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return true
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return false
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/sensor-model-pipeline/internal/adapter/blobstore"
	"github.com/couchcryptid/sensor-model-pipeline/internal/app"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the published model artifact",
	Long:  `Loads the artifact at ARTIFACT_PATH and prints its version, metrics and shape.`,
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print metadata as JSON instead of a summary")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, _ []string) error {
	store, err := app.OpenArtifactStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	artifact, err := blobstore.NewArtifactStore(store, cfg.ArtifactPath).Load(cmd.Context())
	if err != nil {
		return err
	}

	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summarize(artifact))
	}
	printArtifact(cmd.OutOrStdout(), cfg.ArtifactPath, artifact)
	return nil
}

// artifactSummary is the artifact without its trees.
type artifactSummary struct {
	Name          string        `json:"name"`
	FormatVersion int           `json:"format_version"`
	Version       string        `json:"version"`
	TrainedAt     string        `json:"trained_at"`
	FeatureNames  []string      `json:"feature_names"`
	Config        model.Config  `json:"config"`
	Metrics       model.Metrics `json:"metrics"`
	Trees         int           `json:"trees"`
	Nodes         int           `json:"nodes"`
	MaxDepth      int           `json:"max_depth"`
}

func summarize(a *model.Artifact) artifactSummary {
	s := artifactSummary{
		Name:          a.Name,
		FormatVersion: a.FormatVersion,
		Version:       a.Version,
		TrainedAt:     a.TrainedAt.Format(time.RFC3339),
		FeatureNames:  a.FeatureNames,
		Config:        a.Config,
		Metrics:       a.Metrics,
	}
	if a.Forest == nil {
		return s
	}
	s.Trees = len(a.Forest.Trees)
	for i := range a.Forest.Trees {
		s.Nodes += len(a.Forest.Trees[i].Nodes)
		s.MaxDepth = max(s.MaxDepth, a.Forest.Trees[i].Depth())
	}
	return s
}

func printArtifact(w io.Writer, path string, a *model.Artifact) {
	s := summarize(a)
	fmt.Fprintf(w, "Artifact:    %s\n", path)
	fmt.Fprintf(w, "Model:       %s (format %d)\n", s.Name, s.FormatVersion)
	fmt.Fprintf(w, "Version:     %s\n", s.Version)
	fmt.Fprintf(w, "Trained at:  %s\n", s.TrainedAt)
	fmt.Fprintf(w, "Features:    %s\n", strings.Join(s.FeatureNames, ", "))
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "RMSE:        %.4f\n", s.Metrics.RMSE)
	fmt.Fprintf(w, "R2:          %.4f\n", s.Metrics.R2)
	fmt.Fprintf(w, "Rows:        %d train, %d test\n", s.Metrics.TrainRows, s.Metrics.TestRows)
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "Trees:       %d (%d nodes, max depth %d)\n", s.Trees, s.Nodes, s.MaxDepth)
	fmt.Fprintf(w, "Config:      max_depth=%d min_samples_leaf=%d test_fraction=%g seed=%d\n",
		s.Config.MaxDepth, s.Config.MinSamplesLeaf, s.Config.TestFraction, s.Config.Seed)
}

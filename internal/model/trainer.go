package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
)

// Config holds the split and forest hyperparameters.
type Config struct {
	TestFraction   float64 `json:"test_fraction"`
	Seed           uint64  `json:"seed"`
	Trees          int     `json:"trees"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	// MaxFeatures limits the features tried per split; 0 tries all of them.
	MaxFeatures int `json:"max_features,omitempty"`
	// Workers bounds concurrent tree fitting; 0 uses GOMAXPROCS.
	Workers int `json:"-"`
}

// DefaultConfig is a moderate ensemble sized for bounded training time.
func DefaultConfig() Config {
	return Config{
		TestFraction:   0.2,
		Seed:           42,
		Trees:          50,
		MaxDepth:       10,
		MinSamplesLeaf: 1,
	}
}

// Validate rejects hyperparameters that cannot produce a model.
func (c Config) Validate() error {
	switch {
	case c.TestFraction <= 0 || c.TestFraction >= 1:
		return fmt.Errorf("test fraction %v must be in (0, 1)", c.TestFraction)
	case c.Trees < 1:
		return fmt.Errorf("tree count %d must be positive", c.Trees)
	case c.MaxDepth < 1:
		return fmt.Errorf("max depth %d must be positive", c.MaxDepth)
	case c.MinSamplesLeaf < 1:
		return fmt.Errorf("min samples per leaf %d must be positive", c.MinSamplesLeaf)
	case c.MaxFeatures < 0 || c.MaxFeatures > len(domain.FeatureNames):
		return fmt.Errorf("max features %d out of range", c.MaxFeatures)
	}
	return nil
}

// Trainer fits and evaluates the regressor.
type Trainer struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTrainer creates a Trainer. A nil clock uses real time.
func NewTrainer(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Trainer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Trainer{cfg: cfg, clock: clock, logger: logger}
}

// Config returns the trainer's hyperparameters.
func (t *Trainer) Config() Config { return t.cfg }

// Train splits the table, fits a forest on the training partition and
// scores it on the held-out partition. Metrics are informational: a worse
// model than the previous one is still returned.
func (t *Trainer) Train(ctx context.Context, table domain.FeatureTable) (*Artifact, Metrics, error) {
	if err := t.cfg.Validate(); err != nil {
		return nil, Metrics{}, &domain.FitError{Reason: "invalid config", Err: err}
	}
	if table.Len() < 2 {
		return nil, Metrics{}, &domain.FitError{Reason: fmt.Sprintf("need at least 2 rows, got %d", table.Len())}
	}

	x, y := table.Matrix()
	if err := checkFinite(x, y); err != nil {
		return nil, Metrics{}, &domain.FitError{Reason: "non-finite input", Err: err}
	}

	split := TrainTestSplit(len(y), t.cfg.TestFraction, t.cfg.Seed)
	if len(split.Train) == 0 || len(split.Test) == 0 {
		return nil, Metrics{}, &domain.FitError{Reason: "empty train or test partition"}
	}
	trainX, trainY := gather(x, y, split.Train)
	testX, testY := gather(x, y, split.Test)

	start := t.clock.Now()
	forest, err := FitForest(ctx, trainX, trainY, t.cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, Metrics{}, err
		}
		return nil, Metrics{}, &domain.FitError{Reason: "forest", Err: err}
	}

	predicted := forest.PredictAll(testX)
	metrics := Metrics{
		RMSE:      RMSE(predicted, testY),
		R2:        R2(predicted, testY),
		TrainRows: len(trainY),
		TestRows:  len(testY),
	}
	t.logger.Info("model trained",
		"rmse", fmt.Sprintf("%.2f", metrics.RMSE),
		"r2", fmt.Sprintf("%.3f", metrics.R2),
		"train_rows", metrics.TrainRows,
		"test_rows", metrics.TestRows,
		"trees", t.cfg.Trees,
		"max_depth", t.cfg.MaxDepth,
		"duration", t.clock.Since(start),
	)

	artifact := &Artifact{
		Name:          ArtifactName,
		FormatVersion: FormatVersion,
		Version:       uuid.NewString(),
		TrainedAt:     t.clock.Now().UTC().Truncate(time.Second),
		FeatureNames:  slices.Clone(domain.FeatureNames),
		Config:        t.cfg,
		Metrics:       metrics,
		Forest:        forest,
	}
	return artifact, metrics, nil
}

func checkFinite(x [][]float64, y []float64) error {
	for i := range y {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("row %d: label is not finite", i)
		}
		for j, v := range x[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d: feature %s is not finite", i, domain.FeatureNames[j])
			}
		}
	}
	return nil
}

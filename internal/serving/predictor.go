// Package serving answers scoring requests from a model artifact loaded once
// at start-up. The loaded model is never replaced while the process runs; a
// newly published artifact takes effect on restart.
package serving

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
)

// ArtifactLoader reads the published artifact.
type ArtifactLoader interface {
	Load(ctx context.Context) (*model.Artifact, error)
}

// Prediction is the result of scoring one Input.
type Prediction struct {
	Value        float64
	Timestamp    time.Time
	Input        Input
	ModelVersion string
}

// Predictor is an immutable handle on the loaded model, safe for concurrent use.
type Predictor struct {
	artifact *model.Artifact
	loadErr  error
	clock    clockwork.Clock
}

// NewPredictor wraps an artifact. A nil artifact yields a Predictor that
// reports the model as unavailable, carrying loadErr as the reason.
func NewPredictor(artifact *model.Artifact, loadErr error, clock clockwork.Clock) *Predictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Predictor{artifact: artifact, loadErr: loadErr, clock: clock}
}

// LoadPredictor loads the artifact once. A load failure is logged and
// produces a Predictor without a model rather than an error, so the
// service can still answer health checks.
func LoadPredictor(ctx context.Context, loader ArtifactLoader, clock clockwork.Clock, logger *slog.Logger) *Predictor {
	artifact, err := loader.Load(ctx)
	if err != nil {
		logger.Error("model load failed", "error", err)
		return NewPredictor(nil, err, clock)
	}
	logger.Info("model loaded",
		"version", artifact.Version,
		"trained_at", artifact.TrainedAt,
		"trees", len(artifact.Forest.Trees),
		"rmse", artifact.Metrics.RMSE,
		"r2", artifact.Metrics.R2,
	)
	return NewPredictor(artifact, nil, clock)
}

// Loaded reports whether a usable model is held.
func (p *Predictor) Loaded() bool { return p.artifact != nil }

// ModelVersion returns the loaded artifact's version, or "" without a model.
func (p *Predictor) ModelVersion() string {
	if p.artifact == nil {
		return ""
	}
	return p.artifact.Version
}

// CheckReadiness reports the model as unavailable until one is loaded.
func (p *Predictor) CheckReadiness(_ context.Context) error {
	if p.artifact == nil {
		return &domain.ModelUnavailableError{Err: p.loadErr}
	}
	return nil
}

// Predict scores one validated input.
func (p *Predictor) Predict(in Input) (Prediction, error) {
	if p.artifact == nil {
		return Prediction{}, &domain.ModelUnavailableError{Err: p.loadErr}
	}
	v, err := p.artifact.Predict(in.Vector())
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Prediction{}, fmt.Errorf("predict: model returned non-finite value %v", v)
	}
	return Prediction{
		Value:        v,
		Timestamp:    p.clock.Now().UTC(),
		Input:        in,
		ModelVersion: p.artifact.Version,
	}, nil
}

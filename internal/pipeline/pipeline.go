package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
)

// DataSource reads every raw batch currently available.
type DataSource interface {
	LoadBatches(ctx context.Context) ([]domain.RawBatch, error)
}

// ModelTrainer fits and evaluates a model on a feature table.
type ModelTrainer interface {
	Train(ctx context.Context, table domain.FeatureTable) (*model.Artifact, model.Metrics, error)
}

// ArtifactPublisher makes an artifact visible to the scoring service,
// replacing the previous one in a single write.
type ArtifactPublisher interface {
	Publish(ctx context.Context, artifact *model.Artifact) error
}

// Notifier announces a published artifact. Failures do not affect the publish.
type Notifier interface {
	NotifyPublished(ctx context.Context, artifact *model.Artifact) error
}

// State is the orchestrator's position in a cycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePublishing
	StateSkipped
)

var stateNames = [...]string{"IDLE", "RUNNING", "PUBLISHING", "SKIPPED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CycleResult summarizes one fetch-build-train-publish cycle.
type CycleResult struct {
	Outcome     string
	RawReadings int
	FeatureRows int
	Metrics     model.Metrics
	Version     string
	Duration    time.Duration
}

// Pipeline runs retraining cycles. Cycles must not overlap; the Scheduler
// guarantees this by running them from a single goroutine.
type Pipeline struct {
	source    DataSource
	trainer   ModelTrainer
	publisher ArtifactPublisher
	notifier  Notifier
	minRows   int
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	state     atomic.Int32
	ready     atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier announces each successful publish.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMinRows sets the smallest feature table worth training on.
func WithMinRows(n int) Option {
	return func(p *Pipeline) { p.minRows = n }
}

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline with the given stages and observability.
func New(source DataSource, trainer ModelTrainer, publisher ArtifactPublisher, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    source,
		trainer:   trainer,
		publisher: publisher,
		minRows:   domain.DefaultMinRows,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.setState(StateIdle)
	return p
}

// State returns the current cycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// CheckReadiness returns nil once at least one cycle has finished,
// whatever its outcome.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no retraining cycle has completed yet")
	}
	return nil
}

// RunCycle fetches all data, builds features, trains, evaluates and
// publishes. Too little data skips the cycle without an error. Any other
// failure abandons the cycle before publishing and is returned.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleResult, error) {
	start := p.clock.Now()
	p.setState(StateRunning)
	p.logger.Info("cycle started")

	result, err := p.runCycleRecovered(ctx)
	result.Duration = p.clock.Since(start)

	p.metrics.Cycles.WithLabelValues(result.Outcome).Inc()
	p.metrics.CycleDuration.Observe(result.Duration.Seconds())
	p.setState(StateIdle)
	p.ready.Store(true)

	if err != nil {
		p.logger.Error("cycle failed", "error", err, "duration", result.Duration)
		return result, err
	}
	p.logger.Info("cycle finished", "outcome", result.Outcome, "version", result.Version, "duration", result.Duration)
	return result, nil
}

// runCycleRecovered turns a stage panic into a failed cycle, so the state
// reset, readiness and cycle metrics in RunCycle still happen.
func (p *Pipeline) runCycleRecovered(ctx context.Context) (result CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cycle stage panicked", "panic", r, "stack", string(debug.Stack()))
			result.Outcome = observability.OutcomeFailed
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return p.runCycle(ctx)
}

func (p *Pipeline) runCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{Outcome: observability.OutcomeFailed}

	batches, err := p.source.LoadBatches(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch data: %w", err)
	}

	table, err := domain.BuildFeatures(batches, p.minRows, p.logger)
	result.RawReadings = table.RawReadings
	result.FeatureRows = table.Len()
	p.recordTable(table)

	var insufficient *domain.InsufficientDataError
	if errors.As(err, &insufficient) {
		p.setState(StateSkipped)
		p.logger.Warn("skipping cycle", "reason", err, "feature_rows", insufficient.Rows, "min_rows", insufficient.MinRows)
		result.Outcome = observability.OutcomeSkipped
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("build features: %w", err)
	}

	trainStart := p.clock.Now()
	artifact, metrics, err := p.trainer.Train(ctx, table)
	if err != nil {
		return result, fmt.Errorf("train: %w", err)
	}
	p.metrics.TrainingDuration.Observe(p.clock.Since(trainStart).Seconds())
	p.metrics.ModelRMSE.Set(metrics.RMSE)
	p.metrics.ModelR2.Set(metrics.R2)
	result.Metrics = metrics
	result.Version = artifact.Version

	// No quality gate: a model scoring worse than its predecessor still ships.
	p.setState(StatePublishing)
	if err := p.publisher.Publish(ctx, artifact); err != nil {
		return result, fmt.Errorf("publish: %w", err)
	}
	p.metrics.LastPublish.Set(float64(p.clock.Now().Unix()))
	p.logger.Info("model published",
		"version", artifact.Version,
		"rmse", fmt.Sprintf("%.2f", metrics.RMSE),
		"r2", fmt.Sprintf("%.3f", metrics.R2),
	)

	if p.notifier != nil {
		if err := p.notifier.NotifyPublished(ctx, artifact); err != nil {
			p.metrics.NotifyErrors.Inc()
			p.logger.Warn("publish notification failed", "error", err, "version", artifact.Version)
		}
	}

	result.Outcome = observability.OutcomePublished
	return result, nil
}

func (p *Pipeline) recordTable(table domain.FeatureTable) {
	p.metrics.RawReadings.Set(float64(table.RawReadings))
	p.metrics.FeatureRows.Set(float64(table.Len()))
	if table.SkippedReadings > 0 {
		p.metrics.SkippedRecords.WithLabelValues("reading").Add(float64(table.SkippedReadings))
	}
	p.logger.Info("features built",
		"raw_rows", table.RawReadings,
		"feature_rows", table.Len(),
		"stations", table.Stations,
		"skipped_readings", table.SkippedReadings,
	)
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		p.metrics.PipelineState.WithLabelValues(name).Set(v)
	}
}

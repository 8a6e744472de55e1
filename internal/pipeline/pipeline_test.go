package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/pipeline"
)

var cycleStart = time.Date(2024, time.May, 11, 6, 0, 0, 0, time.UTC)

// --- mocks ---

type mockSource struct {
	batches []domain.RawBatch
	err     error
}

func (m *mockSource) LoadBatches(context.Context) ([]domain.RawBatch, error) {
	return m.batches, m.err
}

type mockTrainer struct {
	metrics model.Metrics
	err     error
	calls   int
}

func (m *mockTrainer) Train(_ context.Context, table domain.FeatureTable) (*model.Artifact, model.Metrics, error) {
	m.calls++
	if m.err != nil {
		return nil, model.Metrics{}, m.err
	}
	metrics := m.metrics
	metrics.TrainRows = table.Len()
	return &model.Artifact{Version: "v-test", Metrics: metrics}, metrics, nil
}

type panickingTrainer struct{}

func (panickingTrainer) Train(context.Context, domain.FeatureTable) (*model.Artifact, model.Metrics, error) {
	panic("split index out of range")
}

type mockPublisher struct {
	mu        sync.Mutex
	published []*model.Artifact
	states    []pipeline.State
	err       error
	pipeline  *pipeline.Pipeline
}

func (m *mockPublisher) Publish(_ context.Context, a *model.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pipeline != nil {
		m.states = append(m.states, m.pipeline.State())
	}
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, a)
	return nil
}

type mockNotifier struct {
	err      error
	notified []string
}

func (m *mockNotifier) NotifyPublished(_ context.Context, a *model.Artifact) error {
	m.notified = append(m.notified, a.Version)
	return m.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// hourlyBatches returns one batch per hour, each carrying a reading for every station.
func hourlyBatches(hours int, stations ...string) []domain.RawBatch {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	batches := make([]domain.RawBatch, hours)
	for h := range hours {
		ts := start.Add(time.Duration(h) * time.Hour)
		readings := make([]domain.StationReading, len(stations))
		for i, s := range stations {
			readings[i] = domain.StationReading{
				StationID: ptr(s),
				Value:     ptr(20 + 5*math.Sin(float64(h)/6) + float64(i)),
			}
		}
		batches[h] = domain.RawBatch{Timestamp: ts.Format(time.RFC3339), Readings: readings, Object: "raw/test.json", Line: h + 1}
	}
	return batches
}

func newPipeline(src pipeline.DataSource, tr pipeline.ModelTrainer, pub *mockPublisher, metrics *observability.Metrics, opts ...pipeline.Option) *pipeline.Pipeline {
	opts = append([]pipeline.Option{pipeline.WithClock(clockwork.NewFakeClockAt(cycleStart))}, opts...)
	p := pipeline.New(src, tr, pub, discardLogger(), metrics, opts...)
	pub.pipeline = p
	return p
}

// --- RunCycle ---

func TestRunCycle_PublishesTrainedModel(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	src := &mockSource{batches: hourlyBatches(100, "S1", "S2")}
	pub := &mockPublisher{}

	cfg := model.DefaultConfig()
	cfg.Trees = 5
	cfg.MaxDepth = 5
	trainer := model.NewTrainer(cfg, clockwork.NewFakeClockAt(cycleStart), discardLogger())

	p := newPipeline(src, trainer, pub, metrics)
	require.Error(t, p.CheckReadiness(context.Background()))

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, observability.OutcomePublished, result.Outcome)
	assert.Equal(t, 200, result.RawReadings)
	assert.Equal(t, 152, result.FeatureRows)
	require.Len(t, pub.published, 1)
	assert.Equal(t, result.Version, pub.published[0].Version)
	assert.Equal(t, domain.FeatureNames, pub.published[0].FeatureNames)
	assert.Equal(t, []pipeline.State{pipeline.StatePublishing}, pub.states)
	assert.Equal(t, pipeline.StateIdle, p.State())
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues(observability.OutcomePublished)), 0)
	assert.InDelta(t, 152, testutil.ToFloat64(metrics.FeatureRows), 0)
	assert.InDelta(t, float64(cycleStart.Unix()), testutil.ToFloat64(metrics.LastPublish), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineState.WithLabelValues("IDLE")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineState.WithLabelValues("PUBLISHING")), 0)
}

func TestRunCycle_InsufficientDataSkipsWithoutError(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	trainer := &mockTrainer{}
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{batches: hourlyBatches(50, "S1")}, trainer, pub, metrics)

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, observability.OutcomeSkipped, result.Outcome)
	assert.Equal(t, 26, result.FeatureRows)
	assert.Zero(t, trainer.calls)
	assert.Empty(t, pub.published)
	assert.Equal(t, pipeline.StateIdle, p.State())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues(observability.OutcomeSkipped)), 0)
}

func TestRunCycle_EmptySourceSkips(t *testing.T) {
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{}, &mockTrainer{}, pub, observability.NewMetricsForTesting())

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomeSkipped, result.Outcome)
	assert.Empty(t, pub.published)
}

func TestRunCycle_DegradedModelStillPublished(t *testing.T) {
	trainer := &mockTrainer{metrics: model.Metrics{RMSE: 250, R2: -3.5}}
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{batches: hourlyBatches(150, "S1")}, trainer, pub, observability.NewMetricsForTesting())

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomePublished, result.Outcome)
	assert.InDelta(t, -3.5, result.Metrics.R2, 0)
	require.Len(t, pub.published, 1)
}

func TestRunCycle_FailuresAbandonBeforePublish(t *testing.T) {
	storeErr := &domain.StoreError{Op: "list", Name: "raw/", Err: errors.New("connection refused")}
	fitErr := &domain.FitError{Reason: "non-finite input"}

	tests := []struct {
		name    string
		source  *mockSource
		trainer *mockTrainer
		pubErr  error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "fetch",
			source:  &mockSource{err: storeErr},
			trainer: &mockTrainer{},
			check: func(t *testing.T, err error) {
				var target *domain.StoreError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:    "train",
			source:  &mockSource{batches: hourlyBatches(150, "S1")},
			trainer: &mockTrainer{err: fitErr},
			check: func(t *testing.T, err error) {
				var target *domain.FitError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:    "publish",
			source:  &mockSource{batches: hourlyBatches(150, "S1")},
			trainer: &mockTrainer{},
			pubErr:  &domain.StoreError{Op: "write", Name: "models/m.json", Err: errors.New("disk full")},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "disk full")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetricsForTesting()
			pub := &mockPublisher{err: tt.pubErr}
			p := newPipeline(tt.source, tt.trainer, pub, metrics)

			result, err := p.RunCycle(context.Background())
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, observability.OutcomeFailed, result.Outcome)
			assert.Empty(t, pub.published)
			assert.Equal(t, pipeline.StateIdle, p.State())
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues(observability.OutcomeFailed)), 0)
		})
	}
}

func TestRunCycle_StagePanicEndsCycleAsFailed(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{batches: hourlyBatches(150, "S1")}, panickingTrainer{}, pub, metrics)

	var (
		result pipeline.CycleResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = p.RunCycle(context.Background())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split index out of range")

	assert.Equal(t, observability.OutcomeFailed, result.Outcome)
	assert.Empty(t, pub.published)
	assert.Equal(t, pipeline.StateIdle, p.State())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues(observability.OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineState.WithLabelValues("IDLE")), 0)
}

func TestScheduler_TickAfterStagePanicLeavesPipelineIdle(t *testing.T) {
	p := newPipeline(&mockSource{batches: hourlyBatches(150, "S1")}, panickingTrainer{}, &mockPublisher{}, observability.NewMetricsForTesting())
	s := pipeline.NewScheduler(p, clockwork.NewFakeClockAt(cycleStart), 24*time.Hour, time.Hour, discardLogger())

	assert.True(t, s.Tick(context.Background()))
	assert.Equal(t, pipeline.StateIdle, p.State())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, cycleStart, s.LastRun())
}

func TestRunCycle_NotifyFailureKeepsPublish(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	notifier := &mockNotifier{err: errors.New("broker unavailable")}
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{batches: hourlyBatches(150, "S1")}, &mockTrainer{}, pub, metrics,
		pipeline.WithNotifier(notifier))

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomePublished, result.Outcome)
	assert.Len(t, pub.published, 1)
	assert.Equal(t, []string{"v-test"}, notifier.notified)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.NotifyErrors), 0)
}

func TestRunCycle_MinRowsOption(t *testing.T) {
	pub := &mockPublisher{}
	p := newPipeline(&mockSource{batches: hourlyBatches(50, "S1")}, &mockTrainer{}, pub,
		observability.NewMetricsForTesting(), pipeline.WithMinRows(20))

	result, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, observability.OutcomePublished, result.Outcome)
}

func TestRunCycle_CountsSkippedReadings(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	batches := hourlyBatches(150, "S1")
	batches = append(batches,
		domain.RawBatch{Timestamp: "yesterday", Readings: []domain.StationReading{{StationID: ptr("S1"), Value: ptr(1.0)}}},
		domain.RawBatch{Timestamp: "2024-03-10T00:00:00Z", Readings: []domain.StationReading{{StationID: ptr("S1")}}},
	)
	p := newPipeline(&mockSource{batches: batches}, &mockTrainer{}, &mockPublisher{}, metrics)

	_, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SkippedRecords.WithLabelValues("reading")), 0)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", pipeline.StateIdle.String())
	assert.Equal(t, "RUNNING", pipeline.StateRunning.String())
	assert.Equal(t, "PUBLISHING", pipeline.StatePublishing.String())
	assert.Equal(t, "SKIPPED", pipeline.StateSkipped.String())
	assert.Equal(t, "State(9)", pipeline.State(9).String())
}

package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/serving"
)

const maxScoreBody = 64 << 10

// Scorer answers predictions from a loaded model.
type Scorer interface {
	Predict(in serving.Input) (serving.Prediction, error)
	Loaded() bool
	ModelVersion() string
}

type scoreResponse struct {
	Prediction    float64       `json:"prediction"`
	Timestamp     string        `json:"timestamp"`
	InputFeatures serving.Input `json:"input_features"`
	ModelVersion  string        `json:"model_version,omitempty"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	ModelVersion string `json:"model_version,omitempty"`
}

// ScoringServer exposes POST /score and GET /health.
type ScoringServer struct {
	server
	scorer  Scorer
	version string
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewScoringServer creates the scoring HTTP server. version is the service
// version reported by /health. A nil clock uses real time.
func NewScoringServer(addr string, scorer Scorer, version string, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *ScoringServer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &ScoringServer{
		scorer:  scorer,
		version: version,
		clock:   clock,
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /score", s.handleScore)
	mux.HandleFunc("/score", methodNotAllowed(http.MethodPost))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/health", methodNotAllowed(http.MethodGet))
	mux.HandleFunc("/", notFound)

	s.server = newServer("scoring", addr, requestLogger(logger, recoverer(logger, mux)), logger)

	if scorer.Loaded() {
		metrics.ModelLoaded.Set(1)
	} else {
		metrics.ModelLoaded.Set(0)
	}
	return s
}

func (s *ScoringServer) handleScore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScoreBody))
	if err != nil {
		s.metrics.Predictions.WithLabelValues(observability.PredictionInvalid).Inc()
		writeError(w, http.StatusBadRequest, "request body could not be read")
		return
	}

	in, err := serving.ParseInput(body)
	if err != nil {
		s.metrics.Predictions.WithLabelValues(observability.PredictionInvalid).Inc()
		resp := errorResponse{Error: err.Error()}
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			resp.InvalidFields = vErr.Invalid
			if len(vErr.Missing) > 0 {
				resp.RequiredFields = serving.RequiredFields()
			}
		}
		sharedobs.WriteJSON(w, http.StatusBadRequest, resp)
		return
	}

	pred, err := s.scorer.Predict(in)
	if err != nil {
		if errors.Is(err, domain.ErrModelUnavailable) {
			s.metrics.Predictions.WithLabelValues(observability.PredictionUnavailable).Inc()
			writeError(w, http.StatusInternalServerError, "Model not loaded")
			return
		}
		s.metrics.Predictions.WithLabelValues(observability.PredictionError).Inc()
		s.logger.Error("prediction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}

	s.metrics.Predictions.WithLabelValues(observability.PredictionSuccess).Inc()
	s.logger.Info("prediction made", "prediction", pred.Value, "model_version", pred.ModelVersion)
	sharedobs.WriteJSON(w, http.StatusOK, scoreResponse{
		Prediction:    pred.Value,
		Timestamp:     pred.Timestamp.Format(time.RFC3339Nano),
		InputFeatures: pred.Input,
		ModelVersion:  pred.ModelVersion,
	})
}

func (s *ScoringServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		ModelLoaded:  s.scorer.Loaded(),
		Timestamp:    s.clock.Now().UTC().Format(time.RFC3339Nano),
		Version:      s.version,
		ModelVersion: s.scorer.ModelVersion(),
	})
}

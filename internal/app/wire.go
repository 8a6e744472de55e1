// Package app wires configuration into the concrete stores and pipeline
// shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/sensor-model-pipeline/internal/adapter/blobstore"
	"github.com/couchcryptid/sensor-model-pipeline/internal/config"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
	"github.com/couchcryptid/sensor-model-pipeline/internal/pipeline"
)

// Stores holds the data and artifact stores. They are the same store when
// both settings name the same location.
type Stores struct {
	Data      blobstore.Store
	Artifacts blobstore.Store
}

// OpenStores opens the configured data and artifact stores.
func OpenStores(cfg *config.Config) (*Stores, error) {
	data, err := blobstore.Open(cfg.StoreBackend, cfg.DataStore)
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	if cfg.ArtifactStore == cfg.DataStore {
		return &Stores{Data: data, Artifacts: data}, nil
	}
	artifacts, err := blobstore.Open(cfg.StoreBackend, cfg.ArtifactStore)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return &Stores{Data: data, Artifacts: artifacts}, nil
}

// OpenArtifactStore opens only the artifact side, for the scorer.
func OpenArtifactStore(cfg *config.Config) (blobstore.Store, error) {
	store, err := blobstore.Open(cfg.StoreBackend, cfg.ArtifactStore)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, nil
}

// ArtifactStore returns the publisher/loader for the configured artifact path.
func (s *Stores) ArtifactStore(cfg *config.Config) *blobstore.ArtifactStore {
	return blobstore.NewArtifactStore(s.Artifacts, cfg.ArtifactPath)
}

// Shared reports whether data and artifacts live in the same store.
func (s *Stores) Shared() bool { return s.Data == s.Artifacts }

// DataExclusions names the objects in the data store that are not raw data:
// the published artifact, when the stores are shared.
func (s *Stores) DataExclusions(cfg *config.Config) []string {
	if s.Shared() {
		return []string{cfg.ArtifactPath}
	}
	return nil
}

// Close closes both stores once.
func (s *Stores) Close() error {
	err := s.Data.Close()
	if !s.Shared() {
		err = errors.Join(err, s.Artifacts.Close())
	}
	return err
}

// NewPipeline builds the retraining pipeline over the given stores.
func NewPipeline(cfg *config.Config, stores *Stores, logger *slog.Logger, metrics *observability.Metrics, opts ...pipeline.Option) *pipeline.Pipeline {
	source := blobstore.NewSource(stores.Data, cfg.DataPrefix, logger, metrics, stores.DataExclusions(cfg)...)
	trainer := model.NewTrainer(cfg.Model, nil, logger)
	opts = append([]pipeline.Option{pipeline.WithMinRows(cfg.MinTrainingRows)}, opts...)
	return pipeline.New(source, trainer, stores.ArtifactStore(cfg), logger, metrics, opts...)
}

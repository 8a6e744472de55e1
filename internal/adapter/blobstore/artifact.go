package blobstore

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
)

// ArtifactStore publishes and loads the model artifact at one fixed path.
type ArtifactStore struct {
	store Store
	path  string
}

// NewArtifactStore creates an ArtifactStore writing to path within store.
func NewArtifactStore(store Store, path string) *ArtifactStore {
	return &ArtifactStore{store: store, path: path}
}

// Path returns the artifact's logical path.
func (a *ArtifactStore) Path() string { return a.path }

// Publish serializes the artifact in full and then overwrites the previous
// one with a single store write.
func (a *ArtifactStore) Publish(ctx context.Context, artifact *model.Artifact) error {
	data, err := artifact.Marshal()
	if err != nil {
		return fmt.Errorf("serialize artifact: %w", err)
	}
	if err := a.store.Write(ctx, a.path, data); err != nil {
		return &domain.StoreError{Op: "write", Name: a.path, Err: err}
	}
	return nil
}

// Load reads and validates the published artifact.
func (a *ArtifactStore) Load(ctx context.Context) (*model.Artifact, error) {
	data, err := a.store.Read(ctx, a.path)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Name: a.path, Err: err}
	}
	artifact, err := model.UnmarshalArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %q: %w", a.path, err)
	}
	return artifact, nil
}

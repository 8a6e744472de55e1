package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
)

// ArtifactName is the logical model name.
const ArtifactName = "environmental_model"

// FormatVersion is bumped when the artifact encoding changes incompatibly.
const FormatVersion = 1

// Artifact bundles a fitted forest with the feature contract it expects.
// It is immutable once loaded.
type Artifact struct {
	Name          string    `json:"name"`
	FormatVersion int       `json:"format_version"`
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	FeatureNames  []string  `json:"feature_names"`
	Config        Config    `json:"config"`
	Metrics       Metrics   `json:"metrics"`
	Forest        *Forest   `json:"forest"`
}

// Predict runs the forest on a feature vector in FeatureNames order.
func (a *Artifact) Predict(x []float64) (float64, error) {
	if len(x) != len(a.FeatureNames) {
		return 0, fmt.Errorf("expected %d features, got %d", len(a.FeatureNames), len(x))
	}
	return a.Forest.Predict(x), nil
}

// Marshal encodes the artifact for the artifact store.
func (a *Artifact) Marshal() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// UnmarshalArtifact decodes and checks an artifact read from the store.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported artifact format %d", a.FormatVersion)
	}
	if !slices.Equal(a.FeatureNames, domain.FeatureNames) {
		return fmt.Errorf("artifact features %v do not match %v", a.FeatureNames, domain.FeatureNames)
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return errors.New("artifact has no trees")
	}
	for ti, tree := range a.Forest.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Feature >= len(a.FeatureNames) {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Feature >= 0 && (n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes)) {
				return fmt.Errorf("tree %d node %d: bad child index", ti, ni)
			}
		}
	}
	return nil
}

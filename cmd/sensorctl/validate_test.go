package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sensor-model-pipeline/internal/adapter/blobstore"
)

func writeMock(t *testing.T, store blobstore.Store, opts genOptions) {
	t.Helper()
	objects, err := generateMockObjects(opts)
	require.NoError(t, err)
	for _, obj := range objects {
		require.NoError(t, store.Write(context.Background(), obj.Name, obj.Data))
	}
}

func newFSStore(t *testing.T) blobstore.Store {
	t.Helper()
	store, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestValidateData_Pass(t *testing.T) {
	store := newFSStore(t)
	writeMock(t, store, genOptions{Stations: 2, Days: 4, Start: mockStart, Seed: 3, Prefix: "raw/"})

	phases, report, err := validateData(context.Background(), store, "raw/", 100, discardLogger())
	require.NoError(t, err)

	for _, p := range phases {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
	assert.Equal(t, dataReport{Objects: 4, Batches: 96, Readings: 192, FeatureRows: 144, Stations: 2}, report)

	var out bytes.Buffer
	assert.True(t, printValidation(&out, phases, report))
	assert.Contains(t, out.String(), "All validations passed.")
}

func TestValidateData_MalformedAndTooSmall(t *testing.T) {
	store := newFSStore(t)
	writeMock(t, store, genOptions{Stations: 1, Days: 2, Start: mockStart, Seed: 3, Malformed: 3, Prefix: "raw/"})

	phases, report, err := validateData(context.Background(), store, "raw/", 100, discardLogger())
	require.NoError(t, err)
	require.Len(t, phases, 3)

	decoding, completeness, volume := phases[0], phases[1], phases[2]
	assert.Equal(t, []string{"raw/sensors-2024-03-01.json: 3 malformed lines"}, decoding.errors)
	assert.True(t, completeness.passed())
	assert.Equal(t, []string{"24 feature rows, need at least 100"}, volume.errors)
	assert.Equal(t, 24, report.FeatureRows)

	var out bytes.Buffer
	assert.False(t, printValidation(&out, phases, report))
	assert.Contains(t, out.String(), "--- Training volume ---")
	assert.Contains(t, out.String(), "Validation FAILED.")
}

func TestValidateData_IgnoresOtherPrefixes(t *testing.T) {
	store := newFSStore(t)
	writeMock(t, store, genOptions{Stations: 1, Days: 1, Start: mockStart, Seed: 3, Prefix: "archive/"})

	phases, report, err := validateData(context.Background(), store, "raw/", 1, discardLogger())
	require.NoError(t, err)

	assert.Zero(t, report.Objects)
	assert.Equal(t, []string{`no data objects under "raw/"`}, phases[0].errors)
	assert.False(t, phases[2].passed())
}

func TestValidateData_SkipsArtifactInSharedStore(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)
	writeMock(t, store, genOptions{Stations: 2, Days: 4, Start: mockStart, Seed: 3})

	const artifactPath = "models/environmental_model.json"
	require.NoError(t, blobstore.NewArtifactStore(store, artifactPath).Publish(ctx, stumpArtifact()))

	phases, report, err := validateData(ctx, store, "", 100, discardLogger(), artifactPath)
	require.NoError(t, err)

	for _, p := range phases {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
	assert.Equal(t, 4, report.Objects)
}

package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
)

var mockStart = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateMockObjects(t *testing.T) {
	objects, err := generateMockObjects(genOptions{Stations: 2, Days: 3, Start: mockStart, Seed: 7, Prefix: "raw/"})
	require.NoError(t, err)
	require.Len(t, objects, 3)

	assert.Equal(t, "raw/sensors-2024-03-01.json", objects[0].Name)
	assert.Equal(t, "raw/sensors-2024-03-03.json", objects[2].Name)

	for _, obj := range objects {
		batches, skipped, err := domain.ParseBatchLines(bytes.NewReader(obj.Data), obj.Name, discardLogger())
		require.NoError(t, err)
		assert.Zero(t, skipped)
		require.Len(t, batches, 24)
		assert.Len(t, batches[0].Readings, 2)
	}
}

func TestGenerateMockObjects_Reproducible(t *testing.T) {
	opts := genOptions{Stations: 3, Days: 1, Start: mockStart, Seed: 42}
	a, err := generateMockObjects(opts)
	require.NoError(t, err)
	b, err := generateMockObjects(opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	opts.Seed = 43
	c, err := generateMockObjects(opts)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Data, c[0].Data)
}

func TestGenerateMockObjects_Malformed(t *testing.T) {
	objects, err := generateMockObjects(genOptions{Stations: 1, Days: 2, Start: mockStart, Seed: 1, Malformed: 2})
	require.NoError(t, err)

	_, skipped, err := domain.ParseBatchLines(bytes.NewReader(objects[0].Data), objects[0].Name, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)

	_, skipped, err = domain.ParseBatchLines(bytes.NewReader(objects[1].Data), objects[1].Name, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, skipped)
}

package blobstore

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
	"github.com/couchcryptid/sensor-model-pipeline/internal/observability"
)

var dataSuffixes = []string{".json", ".jsonl", ".ndjson"}

// IsDataObject reports whether a blob name looks like an NDJSON data object.
func IsDataObject(name string) bool {
	for _, suffix := range dataSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// ListDataObjects returns the data objects under prefix in name order,
// leaving out the exclude names. A store that also holds the published
// artifact passes the artifact path here.
func ListDataObjects(ctx context.Context, store Store, prefix string, exclude ...string) ([]string, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var objects []string
	for _, name := range names {
		if IsDataObject(name) && !slices.Contains(exclude, name) {
			objects = append(objects, name)
		}
	}
	return objects, nil
}

// Source reads raw sensor batches from every data object under a prefix.
type Source struct {
	store   Store
	prefix  string
	exclude []string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSource creates a Source over store. Objects named in exclude are never
// read as data.
func NewSource(store Store, prefix string, logger *slog.Logger, metrics *observability.Metrics, exclude ...string) *Source {
	return &Source{store: store, prefix: prefix, exclude: exclude, logger: logger, metrics: metrics}
}

// LoadBatches reads all data objects in name order. Malformed lines are
// skipped; a list or read failure abandons the whole load.
func (s *Source) LoadBatches(ctx context.Context) ([]domain.RawBatch, error) {
	names, err := ListDataObjects(ctx, s.store, s.prefix, s.exclude...)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Name: s.prefix, Err: err}
	}

	var (
		batches []domain.RawBatch
		objects int
		skipped int
	)
	for _, name := range names {
		data, err := s.store.Read(ctx, name)
		if err != nil {
			return nil, &domain.StoreError{Op: "read", Name: name, Err: err}
		}
		objects++

		parsed, n, err := domain.ParseBatchLines(bytes.NewReader(data), name, s.logger)
		if err != nil {
			// The remainder of the object is unreadable; keep what decoded.
			s.logger.Warn("truncating data object", "object", name, "error", err)
			n++
		}
		skipped += n
		batches = append(batches, parsed...)
	}

	if skipped > 0 {
		s.metrics.SkippedRecords.WithLabelValues("line").Add(float64(skipped))
	}
	s.logger.Info("data loaded",
		"prefix", s.prefix,
		"objects", objects,
		"batches", len(batches),
		"skipped_lines", skipped,
	)
	return batches, nil
}

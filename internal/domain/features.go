package domain

import (
	"cmp"
	"log/slog"
	"slices"
)

// DefaultMinRows is the smallest feature table worth training on.
const DefaultMinRows = 100

// FlattenBatches expands batches into individual readings. Batches with an
// unparseable timestamp and readings without a station id or value are
// logged and skipped. The second return value counts skipped records.
func FlattenBatches(batches []RawBatch, logger *slog.Logger) ([]RawReading, int) {
	readings := make([]RawReading, 0, len(batches))
	skipped := 0
	for _, b := range batches {
		ts, err := ParseTimestamp(b.Timestamp)
		if err != nil {
			logger.Warn("skipping batch",
				"error", &DataError{Object: b.Object, Line: b.Line, Reason: "bad timestamp", Err: err})
			skipped++
			continue
		}
		for i, r := range b.Readings {
			if r.StationID == nil || *r.StationID == "" || r.Value == nil {
				logger.Warn("skipping reading",
					"error", &DataError{Object: b.Object, Line: b.Line, Reason: "reading missing station_id or value"},
					"index", i,
				)
				skipped++
				continue
			}
			readings = append(readings, RawReading{Timestamp: ts, StationID: *r.StationID, Value: *r.Value})
		}
	}
	return readings, skipped
}

// BuildFeatures turns raw batches into the cleaned training table.
//
// Readings are grouped by station and stably sorted by timestamp. The lag
// features are positional: value_lag24 is the value 24 rows earlier in the
// station's sequence, which is 24 hours earlier only when sampling is hourly
// and gap-free. Rows without both lags are dropped. An InsufficientDataError
// is returned with the table when fewer than minRows rows remain.
func BuildFeatures(batches []RawBatch, minRows int, logger *slog.Logger) (FeatureTable, error) {
	readings, skipped := FlattenBatches(batches, logger)
	table := BuildFeatureTable(readings)
	table.SkippedReadings = skipped
	if table.Len() < minRows {
		return table, &InsufficientDataError{Rows: table.Len(), MinRows: minRows}
	}
	return table, nil
}

// BuildFeatureTable derives calendar and lag features from flattened readings.
// It does not enforce a minimum size.
func BuildFeatureTable(readings []RawReading) FeatureTable {
	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b RawReading) int {
		if c := cmp.Compare(a.StationID, b.StationID); c != 0 {
			return c
		}
		return a.Timestamp.Compare(b.Timestamp)
	})

	table := FeatureTable{RawReadings: len(readings)}
	start := 0
	for start < len(sorted) {
		end := start + 1
		for end < len(sorted) && sorted[end].StationID == sorted[start].StationID {
			end++
		}
		table.Stations++
		table.Rows = appendStationRows(table.Rows, sorted[start:end])
		start = end
	}
	return table
}

// appendStationRows emits feature rows for one station's time-ordered readings.
func appendStationRows(rows []FeatureRow, station []RawReading) []FeatureRow {
	for i := LongLag; i < len(station); i++ {
		r := station[i]
		rows = append(rows, FeatureRow{
			StationID:  r.StationID,
			Timestamp:  r.Timestamp,
			Hour:       r.Timestamp.Hour(),
			DayOfWeek:  DayOfWeek(r.Timestamp),
			Month:      int(r.Timestamp.Month()),
			ValueLag1:  station[i-ShortLag].Value,
			ValueLag24: station[i-LongLag].Value,
			Value:      r.Value,
		})
	}
	return rows
}

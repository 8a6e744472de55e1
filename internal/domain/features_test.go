package domain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

// hourlyBatches builds n hourly batches starting at start, one reading per
// station, with value = station offset + hour index.
func hourlyBatches(start time.Time, n int, stations map[string]float64) []RawBatch {
	batches := make([]RawBatch, 0, n)
	for i := range n {
		b := RawBatch{Timestamp: start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)}
		for id, offset := range stations {
			b.Readings = append(b.Readings, StationReading{StationID: strPtr(id), Value: floatPtr(offset + float64(i))})
		}
		batches = append(batches, b)
	}
	return batches
}

func TestDayOfWeek_MondayIsZero(t *testing.T) {
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC), 0}, // Monday
		{time.Date(2024, 4, 24, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2024, 4, 27, 0, 0, 0, 0, time.UTC), 5},
		{time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC), 6}, // Sunday
	}
	for _, tt := range tests {
		t.Run(tt.date.Weekday().String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DayOfWeek(tt.date))
		})
	}
}

func TestBuildFeatureTable_CalendarFeatures(t *testing.T) {
	start := time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC) // Friday
	readings := make([]RawReading, 0, 30)
	for i := range 30 {
		readings = append(readings, RawReading{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			StationID: "S1",
			Value:     float64(i),
		})
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 6)

	first := table.Rows[0]
	assert.Equal(t, 0, first.Hour) // 24h after start
	assert.Equal(t, 5, first.DayOfWeek)
	assert.Equal(t, 4, first.Month)
	assert.Equal(t, 23.0, first.ValueLag1)
	assert.Equal(t, 0.0, first.ValueLag24)
	assert.Equal(t, 24.0, first.Value)
}

func TestBuildFeatureTable_KeepsTimestampOffset(t *testing.T) {
	loc := time.FixedZone("+08", 8*3600)
	ts := time.Date(2024, 12, 31, 23, 30, 0, 0, loc)
	readings := make([]RawReading, 0, 25)
	for i := range 25 {
		readings = append(readings, RawReading{Timestamp: ts.Add(time.Duration(i-24) * time.Minute), StationID: "S1"})
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 23, table.Rows[0].Hour)
	assert.Equal(t, 12, table.Rows[0].Month)
}

func TestBuildFeatureTable_LagsArePerStation(t *testing.T) {
	// Interleave two stations whose values never overlap.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var readings []RawReading
	for i := range 40 {
		ts := start.Add(time.Duration(i) * time.Hour)
		readings = append(readings,
			RawReading{Timestamp: ts, StationID: "A", Value: float64(i)},
			RawReading{Timestamp: ts, StationID: "B", Value: 1000 + float64(i)},
		)
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 32)
	assert.Equal(t, 2, table.Stations)
	assert.Equal(t, 80, table.RawReadings)

	for _, row := range table.Rows {
		switch row.StationID {
		case "A":
			assert.Less(t, row.ValueLag1, 1000.0)
			assert.Less(t, row.ValueLag24, 1000.0)
			assert.Equal(t, row.Value-1, row.ValueLag1)
			assert.Equal(t, row.Value-24, row.ValueLag24)
		case "B":
			assert.GreaterOrEqual(t, row.ValueLag1, 1000.0)
			assert.Equal(t, row.Value-1, row.ValueLag1)
		default:
			t.Fatalf("unexpected station %q", row.StationID)
		}
	}
}

func TestBuildFeatureTable_SortsByTimestampWithinStation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var readings []RawReading
	// Reverse chronological input.
	for i := 29; i >= 0; i-- {
		readings = append(readings, RawReading{Timestamp: start.Add(time.Duration(i) * time.Hour), StationID: "S", Value: float64(i)})
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 6)
	for i, row := range table.Rows {
		assert.Equal(t, float64(24+i), row.Value)
		assert.Equal(t, float64(23+i), row.ValueLag1)
		assert.Equal(t, float64(i), row.ValueLag24)
	}
}

func TestBuildFeatureTable_LagIsPositionalAcrossGaps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var readings []RawReading
	for i := range 25 {
		ts := start.Add(time.Duration(i) * time.Hour)
		if i == 24 {
			ts = start.Add(72 * time.Hour) // two-day gap before the last sample
		}
		readings = append(readings, RawReading{Timestamp: ts, StationID: "S", Value: float64(i)})
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 23.0, table.Rows[0].ValueLag1)
	assert.Equal(t, 0.0, table.Rows[0].ValueLag24)
}

func TestBuildFeatureTable_DuplicatesPassThrough(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var readings []RawReading
	for i := range 26 {
		readings = append(readings, RawReading{Timestamp: ts, StationID: "S", Value: float64(i)})
	}

	table := BuildFeatureTable(readings)
	require.Len(t, table.Rows, 2)
	// Stable sort keeps input order for equal timestamps.
	assert.Equal(t, 24.0, table.Rows[0].Value)
	assert.Equal(t, 25.0, table.Rows[1].Value)
}

func TestBuildFeatures_InsufficientData(t *testing.T) {
	batches := hourlyBatches(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 50, map[string]float64{"S1": 0})

	table, err := BuildFeatures(batches, DefaultMinRows, discardLogger())
	require.Error(t, err)

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 26, insufficient.Rows)
	assert.Equal(t, DefaultMinRows, insufficient.MinRows)
	assert.Equal(t, 26, table.Len())
}

func TestBuildFeatures_Enough(t *testing.T) {
	batches := hourlyBatches(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100, map[string]float64{"S1": 0, "S2": 50})

	table, err := BuildFeatures(batches, DefaultMinRows, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 152, table.Len())
	assert.Equal(t, 200, table.RawReadings)
}

func TestFlattenBatches_SkipsBadRecords(t *testing.T) {
	batches := []RawBatch{
		{Timestamp: "2024-01-01T00:00:00Z", Readings: []StationReading{
			{StationID: strPtr("S1"), Value: floatPtr(1)},
			{StationID: nil, Value: floatPtr(2)},
			{StationID: strPtr("S2"), Value: nil},
			{StationID: strPtr(""), Value: floatPtr(3)},
		}},
		{Timestamp: "yesterday", Readings: []StationReading{{StationID: strPtr("S1"), Value: floatPtr(4)}}},
		{Timestamp: "2024-01-01 01:00:00", Readings: []StationReading{{StationID: strPtr("S1"), Value: floatPtr(0)}}},
	}

	readings, skipped := FlattenBatches(batches, discardLogger())
	assert.Equal(t, 4, skipped)

	want := []RawReading{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), StationID: "S1", Value: 1},
		{Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), StationID: "S1", Value: 0},
	}
	if diff := cmp.Diff(want, readings); diff != "" {
		t.Fatalf("readings mismatch (-want +got):\n%s", diff)
	}
}

func TestFeatureTable_Matrix(t *testing.T) {
	table := FeatureTable{Rows: []FeatureRow{
		{Hour: 3, DayOfWeek: 1, Month: 7, ValueLag1: 10, ValueLag24: 20, Value: 11},
	}}
	x, y := table.Matrix()
	require.Len(t, x, 1)
	assert.Equal(t, []float64{3, 1, 7, 10, 20}, x[0])
	assert.Equal(t, []float64{11}, y)
	assert.Len(t, FeatureNames, len(x[0]))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&InsufficientDataError{Rows: 12, MinRows: 100}, "insufficient data: 12 feature rows, need at least 100"},
		{&FitError{Reason: "empty training set"}, "fit failed: empty training set"},
		{&StoreError{Op: "read", Name: "a.json", Err: io.ErrUnexpectedEOF}, `store read "a.json": unexpected EOF`},
		{&DataError{Object: "a.json", Line: 3, Reason: "invalid json"}, "malformed record a.json:3: invalid json"},
		{&ValidationError{Missing: []string{"hour"}}, "missing required fields: hour"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestModelUnavailableError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load: %w", &ModelUnavailableError{Err: io.EOF})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "load: model not loaded: EOF", err.Error())
}

package domain

import "time"

// Lag offsets, in positions within a station's sorted sequence.
const (
	ShortLag = 1
	LongLag  = 24
)

// FeatureNames is the ordered feature contract shared by the trainer and the
// scoring service. Index positions match FeatureRow.Vector.
var FeatureNames = []string{"hour", "day_of_week", "month", "value_lag1", "value_lag24"}

// RawLine is the envelope of one NDJSON line in a raw data object.
type RawLine struct {
	Items *RawBatch `json:"items"`
}

// RawBatch groups station readings that share one timestamp.
type RawBatch struct {
	Timestamp string           `json:"timestamp"`
	Readings  []StationReading `json:"readings"`

	// Object is the name of the data object the batch was decoded from.
	Object string `json:"-"`
	// Line is the 1-based line number within Object.
	Line int `json:"-"`
}

// StationReading is a single station's value inside a RawBatch. Pointer
// fields distinguish an absent key from a zero value.
type StationReading struct {
	StationID *string  `json:"station_id"`
	Value     *float64 `json:"value"`
}

// RawReading is one flattened observation.
type RawReading struct {
	Timestamp time.Time
	StationID string
	Value     float64
}

// FeatureRow is one supervised-learning example.
type FeatureRow struct {
	StationID  string    `json:"station_id"`
	Timestamp  time.Time `json:"timestamp"`
	Hour       int       `json:"hour"`
	DayOfWeek  int       `json:"day_of_week"`
	Month      int       `json:"month"`
	ValueLag1  float64   `json:"value_lag1"`
	ValueLag24 float64   `json:"value_lag24"`
	Value      float64   `json:"value"`
}

// Vector returns the row's features in FeatureNames order.
func (r FeatureRow) Vector() []float64 {
	return []float64{float64(r.Hour), float64(r.DayOfWeek), float64(r.Month), r.ValueLag1, r.ValueLag24}
}

// FeatureTable is the cleaned training table, ordered by station then timestamp.
type FeatureTable struct {
	Rows []FeatureRow

	// RawReadings is the number of readings flattened before lags were applied.
	RawReadings int
	// Stations is the number of distinct stations seen.
	Stations int
	// SkippedReadings counts batches and readings dropped while flattening.
	SkippedReadings int
}

// Len returns the number of rows.
func (t FeatureTable) Len() int { return len(t.Rows) }

// Matrix returns the feature matrix and label vector.
func (t FeatureTable) Matrix() ([][]float64, []float64) {
	x := make([][]float64, len(t.Rows))
	y := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		x[i] = row.Vector()
		y[i] = row.Value
	}
	return x, y
}

// DayOfWeek maps a weekday to the Monday=0 .. Sunday=6 convention.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

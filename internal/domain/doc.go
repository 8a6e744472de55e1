// Package domain models environmental sensor readings and the feature table
// the retraining pipeline builds from them.
//
// # Data Source
//
// Sensor gateways append newline-delimited JSON objects to the data store.
// Every line wraps one batch of readings that share a timestamp:
//
//	{"items": {"timestamp": "2024-04-26T15:00:00+08:00",
//	           "readings": [{"station_id": "S107", "value": 28.4}, ...]}}
//
// Lines that are not JSON are skipped with a warning. Lines that parse but
// have no "items" object are ignored. Duplicate (timestamp, station) pairs
// are kept as-is.
//
// # Timestamps
//
// Timestamps are ISO-8601. A timestamp with an offset keeps it, so derived
// calendar features are local to the station's reported zone. A timestamp
// without an offset is read as UTC.
//
// # Features
//
// Calendar features come from the reading's own timestamp:
//
//	hour         0-23
//	day_of_week  0-6, Monday=0 (see [DayOfWeek])
//	month        1-12
//
// Lag features are positional within one station's sequence sorted by
// timestamp, never across stations:
//
//	value_lag1   value 1 row earlier
//	value_lag24  value 24 rows earlier
//
// When a station skips samples the effective time lag grows with the gap.
// That behaviour is kept on purpose so that training and serving agree on
// what a lag means. The first 24 rows of each station have no value_lag24
// and are dropped.
//
// # Errors
//
// Pipeline-side failures are typed so the orchestrator can decide between
// skipping a record ([DataError]), skipping a cycle ([InsufficientDataError])
// and abandoning a cycle ([FitError], [StoreError]). The scoring boundary
// uses [ValidationError] and [ErrModelUnavailable].
package domain

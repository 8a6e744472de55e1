package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelUnavailable is returned by the scoring path when no model artifact
// could be loaded at start-up.
var ErrModelUnavailable = errors.New("model not loaded")

// DataError reports a malformed raw record. Callers skip the record.
type DataError struct {
	Object string
	Line   int
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("malformed record %s:%d: %s", e.Object, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// InsufficientDataError means the cleaned table is too small to train on.
// The training cycle is skipped.
type InsufficientDataError struct {
	Rows    int
	MinRows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d feature rows, need at least %d", e.Rows, e.MinRows)
}

// FitError means the regressor could not be trained on the given table.
type FitError struct {
	Reason string
	Err    error
}

func (e *FitError) Error() string {
	if e.Err != nil {
		return "fit failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "fit failed: " + e.Reason
}

func (e *FitError) Unwrap() error { return e.Err }

// StoreError wraps a failure talking to the data or artifact store.
type StoreError struct {
	Op   string
	Name string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ModelUnavailableError carries the reason the artifact failed to load.
// It matches ErrModelUnavailable under errors.Is.
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err == nil {
		return ErrModelUnavailable.Error()
	}
	return ErrModelUnavailable.Error() + ": " + e.Err.Error()
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// ValidationError describes a rejected scoring request. Missing lists
// required keys that were absent; Invalid lists keys with a bad type or
// out-of-range value.
type ValidationError struct {
	Message string
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

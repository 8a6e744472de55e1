package domain

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// maxLineBytes bounds a single NDJSON line. Batches from a full station
// network fit comfortably; anything larger is treated as corrupt.
const maxLineBytes = 4 << 20

// timestampLayouts are tried in order. Layouts without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

// ParseBatchLines decodes an NDJSON data object. Blank lines and lines
// without an "items" object are ignored. Lines that are not valid JSON are
// logged and skipped; the number skipped is returned alongside the batches.
// A read error stops decoding and is returned with what was decoded so far.
func ParseBatchLines(r io.Reader, object string, logger *slog.Logger) ([]RawBatch, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		batches []RawBatch
		skipped int
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		batch, ok, err := parseLine(line)
		if err != nil {
			dataErr := &DataError{Object: object, Line: lineNo, Reason: "invalid json", Err: err}
			logger.Warn("skipping malformed line", "object", object, "line", lineNo, "error", dataErr)
			skipped++
			continue
		}
		if !ok {
			continue
		}
		batch.Object = object
		batch.Line = lineNo
		batches = append(batches, batch)
	}
	if err := scanner.Err(); err != nil {
		return batches, skipped, fmt.Errorf("read %s: %w", object, err)
	}
	return batches, skipped, nil
}

func parseLine(line []byte) (RawBatch, bool, error) {
	// Non-object lines (arrays, scalars) carry no batch.
	if line[0] != '{' {
		if !json.Valid(line) {
			return RawBatch{}, false, fmt.Errorf("invalid character %q at start of line", line[0])
		}
		return RawBatch{}, false, nil
	}

	var env RawLine
	if err := json.Unmarshal(line, &env); err != nil {
		return RawBatch{}, false, err
	}
	if env.Items == nil {
		return RawBatch{}, false, nil
	}
	return *env.Items, true, nil
}

// ParseTimestamp parses an ISO-8601 timestamp in any of the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

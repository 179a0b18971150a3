// Package parser splits raw export files into normalized events.
// Supported formats, auto-detected: a JSON array of records, or NDJSON
// with one record per non-blank line.
package parser

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/waflens/waflens/internal/model"
	"github.com/waflens/waflens/internal/normalize"
)

// Result is the outcome of parsing one file: the normalized events in
// input order plus human-readable per-record errors. Records the
// normalizer skipped (no correlation id or timestamp) appear in
// neither list.
type Result struct {
	Events []model.Event
	Errors []string
}

// Parse never fails on content issues: undecodable content degrades to
// zero events with errors collected per record.
func Parse(content []byte) Result {
	var res Result

	var records []json.RawMessage
	if err := json.Unmarshal(content, &records); err == nil {
		for i, rec := range records {
			var raw normalize.Raw
			if err := json.Unmarshal(rec, &raw); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
				continue
			}
			if ev, ok := normalize.Record(raw); ok {
				res.Events = append(res.Events, ev)
			}
		}
		return res
	}

	// Not a JSON array; fall back to line-oriented mode. One bad line
	// does not abort the rest.
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw normalize.Raw
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}
		if ev, ok := normalize.Record(raw); ok {
			res.Events = append(res.Events, ev)
		}
	}
	return res
}

package events

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Exporter writes events to w in some format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}

// NewExporter returns the exporter for format: "json", "jsonl" or "csv".
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return &JSONExporter{Pretty: true}, nil
	case "jsonl", "ndjson":
		return &JSONLinesExporter{}, nil
	case "csv":
		return &CSVExporter{IncludeHeader: true}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (must be json, jsonl, or csv)", format)
	}
}

// JSONExporter writes events as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// Export implements Exporter.
func (x *JSONExporter) Export(ctx context.Context, events []*Event, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return &ExportError{Format: "json", Count: len(events), Cause: err}
	}
	if events == nil {
		events = []*Event{}
	}

	enc := json.NewEncoder(w)
	if x.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(events); err != nil {
		return &ExportError{Format: "json", Count: len(events), Cause: err}
	}
	return nil
}

// JSONLinesExporter writes one JSON object per line.
type JSONLinesExporter struct{}

// Export implements Exporter.
func (x *JSONLinesExporter) Export(ctx context.Context, events []*Event, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return &ExportError{Format: "jsonl", Count: i, Cause: err}
		}
		if err := enc.Encode(e); err != nil {
			return &ExportError{Format: "jsonl", Count: i, Cause: err}
		}
	}
	return nil
}

// CSVExporter writes one row per event. Attempts are flattened into a
// "provider:outcome" list.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

var csvHeader = []string{
	"id", "request_id", "timestamp", "task_type", "confidence",
	"candidates_considered", "selected_provider", "outcome",
	"total_latency_ms", "total_cost", "confidence_tier", "objective",
	"cache_hit", "cache", "attempts", "error",
}

// Export implements Exporter.
func (x *CSVExporter) Export(ctx context.Context, events []*Event, w io.Writer) error {
	cw := csv.NewWriter(w)

	if x.IncludeHeader {
		if err := cw.Write(csvHeader); err != nil {
			return &ExportError{Format: "csv", Count: 0, Cause: err}
		}
	}
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return &ExportError{Format: "csv", Count: i, Cause: err}
		}
		if err := cw.Write(csvRow(e)); err != nil {
			return &ExportError{Format: "csv", Count: i, Cause: err}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return &ExportError{Format: "csv", Count: len(events), Cause: err}
	}
	return nil
}

func csvRow(e *Event) []string {
	attempts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		attempts[i] = a.ProviderID + ":" + string(a.Outcome)
	}

	return []string{
		e.ID,
		e.RequestID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.TaskType),
		strconv.FormatFloat(e.Confidence, 'f', 4, 64),
		strconv.Itoa(e.CandidatesConsidered),
		e.SelectedProvider,
		e.Outcome,
		strconv.FormatInt(e.TotalLatencyMs, 10),
		strconv.FormatFloat(e.TotalCost, 'f', 6, 64),
		string(e.Tier),
		string(e.Objective),
		strconv.FormatBool(e.CacheHit),
		e.Cache,
		strings.Join(attempts, ";"),
		e.Error,
	}
}

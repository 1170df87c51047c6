package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggingConfig
		wantErr bool
	}{
		{name: "json", config: config.LoggingConfig{Level: "info", Format: "json"}},
		{name: "text", config: config.LoggingConfig{Level: "debug", Format: "text"}},
		{name: "console is text", config: config.LoggingConfig{Level: "warn", Format: "console"}},
		{name: "defaults", config: config.LoggingConfig{}},
		{name: "invalid level", config: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New returned nil logger")
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(config.LoggingConfig{Level: "warn"}, buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	if lines[0]["msg"] != "warn" || lines[1]["msg"] != "error" {
		t.Errorf("unexpected messages: %v", lines)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(config.LoggingConfig{Level: "info"}, buf)
	if err != nil {
		t.Fatal(err)
	}
	child := logger.With("component", "test")

	child.Debug("hidden")
	if err := logger.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	child.Debug("shown")

	if logger.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", logger.Level())
	}
	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Errorf("derived logger did not follow level change: %v", lines)
	}

	if err := logger.SetLevel("nope"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(config.LoggingConfig{}, buf)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	logger.InfoContext(ctx, "routed", "provider", "openai")
	logger.Info("no context")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0]["request_id"] != "req-123" {
		t.Errorf("request_id = %v", lines[0]["request_id"])
	}
	if lines[0]["provider"] != "openai" {
		t.Errorf("provider = %v", lines[0]["provider"])
	}
	if _, ok := lines[1]["request_id"]; ok {
		t.Error("record without context should not carry request_id")
	}
}

func TestLogger_Redaction(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(config.LoggingConfig{}, buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("calling upstream",
		"api_key", "sk-abcdefghijklmnop",
		"header", "Bearer eyJhbGciOi",
		"provider", "openai",
	)

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnop") {
		t.Errorf("api key leaked: %s", out)
	}
	if strings.Contains(out, "eyJhbGciOi") {
		t.Errorf("bearer token leaked: %s", out)
	}
	if !strings.Contains(out, `"provider":"openai"`) {
		t.Errorf("non-sensitive field altered: %s", out)
	}
}

func TestLogger_TextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(config.LoggingConfig{Format: "text", AddSource: true}, buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %s", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("AddSource not honored: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"", FormatJSON, false},
		{"TEXT", FormatText, false},
		{"console", FormatText, false},
		{"xml", FormatJSON, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

package events

import (
	"context"
	"path/filepath"
	"testing"

	"mercator-hq/relay/pkg/config"
)

func TestNewPipeline(t *testing.T) {
	disabled := false

	tests := []struct {
		name        string
		cfg         config.EventsConfig
		wantStorage bool
		wantSink    string
		wantErr     bool
	}{
		{"disabled", config.EventsConfig{Enabled: &disabled}, false, "discard", false},
		{"default memory", config.EventsConfig{}, true, "recorder", false},
		{"log", config.EventsConfig{Backend: "log"}, false, "log", false},
		{"sqlite", config.EventsConfig{Backend: "sqlite"}, true, "recorder", false},
		{"unknown", config.EventsConfig{Backend: "kafka"}, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Backend == "sqlite" {
				tt.cfg.SQLite.Path = filepath.Join(t.TempDir(), "events.db")
			}

			p, err := NewPipeline(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPipeline() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer p.Close()

			if (p.Storage != nil) != tt.wantStorage {
				t.Errorf("Storage = %v, wantStorage %v", p.Storage, tt.wantStorage)
			}

			var kind string
			switch p.Sink.(type) {
			case Discard:
				kind = "discard"
			case *LogSink:
				kind = "log"
			case *Recorder:
				kind = "recorder"
			}
			if kind != tt.wantSink {
				t.Errorf("sink = %s, want %s", kind, tt.wantSink)
			}
		})
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := config.EventsConfig{
		Backend: "sqlite",
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db")},
		Retention: config.RetentionConfig{
			Days:     7,
			Schedule: "0 3 * * *",
		},
	}
	p, err := NewPipeline(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}

	e := testEvent("", 0)
	e.Timestamp = e.Timestamp.AddDate(100, 0, 0)
	p.Sink.Emit(*e)

	// Drain before reading; the recorder is closed again by Pipeline.Close.
	p.Recorder.Close()

	n, err := p.Storage.Count(context.Background(), &Query{})
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v", n, err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

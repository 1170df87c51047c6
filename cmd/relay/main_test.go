package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

const testConfig = `
providers:
  - id: A
    capabilities: [general, coding]
    cost_per_unit: 1
    baseline_latency_ms: 200
    accuracy: 0.80
    simulate: {latency_ms: 1}
  - id: B
    capabilities: [general, reasoning]
    cost_per_unit: 2
    baseline_latency_ms: 100
    accuracy: 0.95
    simulate: {latency_ms: 1}
telemetry:
  logging: {level: error}
`

// useConfig writes content to a temp file and points --config at it.
func useConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	origFile, origLevel := cfgFile, logLevel
	cfgFile, logLevel = path, ""
	t.Cleanup(func() { cfgFile, logLevel = origFile, origLevel })
	return path
}

// testCommand returns a command whose output lands in the returned buffer.
func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestCommandTree(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false, "route": false, "events": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("rootCmd is missing the %q command", name)
		}
	}

	var prune bool
	for _, c := range eventsCmd.Commands() {
		prune = prune || c.Name() == "prune"
	}
	if !prune {
		t.Error("events command is missing the prune subcommand")
	}

	if f := rootCmd.PersistentFlags().Lookup("config"); f == nil || f.DefValue != "relay.yaml" {
		t.Errorf("--config flag = %+v, want default relay.yaml", f)
	}
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	useConfig(t, testConfig)
	logLevel = "debug"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
	if len(cfg.Providers) != 2 {
		t.Errorf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
}

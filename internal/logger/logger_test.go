package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestScopedLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finscan.log")
	if err := Setup(LogConfig{Level: "debug", Format: "json", Output: path}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	run := WithRunID("pipeline", "run-1")
	run.Info().Msg("started")
	page := WithPage(WithComponent("ocr"), 4)
	page.Debug().Msg("pass evaluated")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var lines []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}

	tests := []struct {
		name  string
		line  map[string]any
		field string
		want  any
	}{
		{"run component", lines[0], "component", "pipeline"},
		{"run id", lines[0], "run_id", "run-1"},
		{"page component", lines[1], "component", "ocr"},
		{"page index", lines[1], "page", float64(4)},
		{"page level", lines[1], "level", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.line[tt.field]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(LogConfig{Level: "loud"}); err == nil {
		t.Error("Setup() error = nil, want an error for an unknown level")
	}
}

package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/ppiankov/schemetrust/internal/model"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, model.LogConfig{Level: "info", Format: "json"})
	logger.Info("run committed", "scheme_id", "pm-kisan")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if m["scheme_id"] != "pm-kisan" {
		t.Errorf("scheme_id = %v", m["scheme_id"])
	}
	if _, ok := m["source"]; ok {
		t.Error("json format should not include source")
	}
}

func TestNewLogger_TextIncludesSource(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, model.LogConfig{Level: "debug", Format: "text"})
	logger.Debug("fetched")

	if !strings.Contains(buf.String(), "source=") {
		t.Errorf("text output %q should include source", buf.String())
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, model.LogConfig{Level: "warn", Format: "text"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildVersion(t *testing.T) {
	if got := BuildVersion(); !strings.HasPrefix(got, Version) {
		t.Errorf("BuildVersion() = %q", got)
	}
}

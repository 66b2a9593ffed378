package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" ERROR ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestModuleAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithHandler(slog.NewJSONHandler(&buf, nil)).Module("oracle")
	logger.Info("request answered", "handles", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["module"] != "oracle" {
		t.Fatalf("module = %v", rec["module"])
	}
	if rec["msg"] != "request answered" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["handles"] != float64(2) {
		t.Fatalf("handles = %v", rec["handles"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info leaked through warn level: %s", buf.String())
	}
	logger.Error("kept")
	if buf.Len() == 0 {
		t.Fatal("error filtered out")
	}
}

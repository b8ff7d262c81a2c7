package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init("warn", "json")
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		Init("info", "json")
	})

	Debug("poll tick %d", 1)
	Info("session started")
	Warn("notifier failed: %s", "timeout")
	Error("export failed")

	out := buf.String()
	if strings.Contains(out, "poll tick") || strings.Contains(out, "session started") {
		t.Errorf("Expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] notifier failed: timeout") {
		t.Errorf("Expected warn line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] export failed") {
		t.Errorf("Expected error line, got %q", out)
	}
	if Enabled(InfoLevel) {
		t.Error("Expected InfoLevel disabled at warn")
	}
}

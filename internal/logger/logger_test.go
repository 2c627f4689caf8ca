package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("console only when no file configured", func(t *testing.T) {
		var buf bytes.Buffer
		log, closeFn, err := New(Options{Level: "info", Console: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer closeFn()

		log.Info("hello", "key", "value")
		log.Debug("hidden")

		out := buf.String()
		if !strings.Contains(out, "hello") {
			t.Errorf("console output missing info record: %q", out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("console output should filter debug records: %q", out)
		}
	})

	t.Run("file captures debug while console filters", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "app.log")
		var buf bytes.Buffer

		log, closeFn, err := New(Options{
			Level:      "info",
			FilePath:   logPath,
			MaxSizeMB:  1,
			MaxBackups: 1,
			Console:    &buf,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		log.Debug("debug record", "n", 1)
		log.Info("info record", "n", 2)
		if err := closeFn(); err != nil {
			t.Fatalf("close error = %v", err)
		}

		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 {
			t.Fatalf("file has %d records, want 2: %q", len(lines), data)
		}
		for _, line := range lines {
			var rec map[string]any
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				t.Errorf("file record is not JSON: %q", line)
			}
		}

		if strings.Contains(buf.String(), "debug record") {
			t.Error("console should not show debug records at info level")
		}
	})

	t.Run("with attrs propagates to both sinks", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "app.log")
		var buf bytes.Buffer

		log, closeFn, err := New(Options{Level: "info", FilePath: logPath, Console: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		log.With("session", "abc").Info("tagged")
		closeFn()

		if !strings.Contains(buf.String(), "session=abc") {
			t.Errorf("console missing attr: %q", buf.String())
		}
		data, _ := os.ReadFile(logPath)
		if !strings.Contains(string(data), `"session":"abc"`) {
			t.Errorf("file missing attr: %q", data)
		}
	})
}

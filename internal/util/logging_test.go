package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, cleanup := InitLogger("info", "bot", dir)
	logger.Info("hello", "user_id", 42)
	logger.Debug("hidden")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "bot.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "hello" || rec["service"] != "bot" || rec["user_id"] != float64(42) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 36 || seen[id] {
			t.Fatalf("unexpected id %q", id)
		}
		seen[id] = true
	}
}

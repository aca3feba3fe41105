package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps debug, info, warn and error to slog levels. Unknown input is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger configures the global slog logger with JSON output.
// When logsDir is set, records are also appended to <logsDir>/<service>.log.
// The returned cleanup closes that file.
func InitLogger(level, service, logsDir string) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	cleanup := func() {}
	if dir := strings.TrimSpace(logsDir); dir != "" {
		f, err := openLogFile(dir, service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
			cleanup = func() { _ = f.Close() }
		}
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})
	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger, cleanup
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(service)
	if name == "" {
		name = "app"
	}
	return os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Fatal logs at error level and exits with status 1.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

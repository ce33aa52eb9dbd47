// Package logging sets up the process-wide slog logger once at startup.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Setup creates a text logger writing to stderr and to logs/<app>/<YYYY-MM-DD>.log.
// The returned closer releases the log file and must be called at shutdown.
func Setup(logDir, app, level string) (*slog.Logger, io.Closer, error) {
	return setup(logDir, app, level, os.Stderr)
}

// SetupQuiet is Setup without the stderr copy, for full-screen terminal UIs.
func SetupQuiet(logDir, app, level string) (*slog.Logger, io.Closer, error) {
	return setup(logDir, app, level, nil)
}

func setup(logDir, app, level string, console io.Writer) (*slog.Logger, io.Closer, error) {
	dir := filepath.Join(logDir, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	name := time.Now().Format("2006-01-02") + ".log"
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if console != nil {
		out = io.MultiWriter(console, file)
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	logger := slog.New(handler).With("app", app)
	slog.SetDefault(logger)

	return logger, file, nil
}

// ParseLevel maps a level name to slog.Level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Component returns a child of logger tagged with the component name.
// A nil logger falls back to slog.Default().
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}

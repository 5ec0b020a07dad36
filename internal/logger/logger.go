package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init configures the global JSON logger. Call early in main(). When
// logFile is non-empty, output goes to the file and stdout both, so the
// scheduler keeps a durable log while still being watchable.
func Init(level, logFile string) error {
	lvl := parseLevel(level)

	var w io.Writer = os.Stdout
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	defaultLogger = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(defaultLogger)
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Default returns the configured logger, initializing with defaults if
// Init was never called (tests, small CLIs).
func Default() *slog.Logger {
	if defaultLogger == nil {
		Init(os.Getenv("CLIPPERTV_LOG_LEVEL"), "")
	}
	return defaultLogger
}

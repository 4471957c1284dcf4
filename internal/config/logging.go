package config

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger and installs it as the slog default.
// With a file configured, output goes to a rotating file instead of stderr.
func NewLogger(cfg LogConfig) *slog.Logger {
	var w io.Writer = os.Stderr
	if strings.TrimSpace(cfg.File) != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	logger := newLogger(w, cfg.Level, cfg.Format)
	slog.SetDefault(logger)
	log.SetOutput(w)
	if strings.ToLower(cfg.Format) == "json" {
		log.SetFlags(0)
	}
	return logger
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
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

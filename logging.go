package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// parseLevel maps a config level name to a slog level; unknown names mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger creates an slog.Logger writing to stderr or a rotating file.
// Stdout is reserved for the MCP stdio transport.
func setupLogger(level string, logFile string) (*slog.Logger, io.Closer) {
	var writer io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err == nil {
			rotating := &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
			}
			writer = rotating
			closer = rotating
		}
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler), closer
}

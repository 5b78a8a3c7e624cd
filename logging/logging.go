// Package logging holds the level names shared by the CLI and the pipeline.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LevelVerbose sits below slog.LevelDebug; it carries full bodies and embeds.
const LevelVerbose = slog.LevelDebug - 4

// ParseLevel maps error, warn(ing), info, debug and verbose to slog levels.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// ReplaceLevel renders LevelVerbose as "VERBOSE" instead of "DEBUG-4".
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelVerbose {
		a.Value = slog.StringValue("VERBOSE")
	}
	return a
}

// Verbose logs at LevelVerbose; a nil logger discards.
func Verbose(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Log(context.Background(), LevelVerbose, msg, args...)
}

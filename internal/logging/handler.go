// Package logging builds the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format values accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is treated as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a handler writing to out. An empty format picks colorized text
// when out is a terminal and JSON otherwise.
func New(out io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)

	switch resolveFormat(out, format) {
	case FormatText:
		return tint.NewHandler(out, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	default:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	}
}

// Setup installs New(os.Stdout, format, level) as the default logger.
func Setup(format, level string) *slog.Logger {
	logger := slog.New(New(os.Stdout, format, level))
	slog.SetDefault(logger)
	return logger
}

func resolveFormat(out io.Writer, format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText:
		return FormatText
	case FormatJSON:
		return FormatJSON
	}
	if isTerminal(out) {
		return FormatText
	}
	return FormatJSON
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

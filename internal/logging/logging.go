// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below Debug and used for per-pointer-event output.
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

// ParseLevel maps a config string to a slog level. Unknown values map to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// Init installs a JSON or text handler writing to w as the slog default.
// A nil writer selects stderr.
func Init(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				if label, ok := levelNames[lvl]; ok {
					a.Value = slog.StringValue(label)
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ForModule returns the default logger scoped to a module name.
func ForModule(name string) *slog.Logger {
	return slog.Default().With("module", name)
}

// OrModule returns l, or the module logger when l is nil.
func OrModule(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l.With("module", name)
	}
	return ForModule(name)
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

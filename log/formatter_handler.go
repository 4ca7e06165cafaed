package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FormatterHandler adapts a LogFormatter to the slog.Handler interface, so
// the console-oriented TextFormatter/ColorFormatter can sit behind the same
// Logger API as the default JSON handler.
type FormatterHandler struct {
	formatter LogFormatter
	out       io.Writer
	level     slog.Level
	attrs     []slog.Attr
}

// NewFormatterHandler creates a FormatterHandler writing to out at the given
// minimum level.
func NewFormatterHandler(formatter LogFormatter, out io.Writer, level slog.Level) *FormatterHandler {
	return &FormatterHandler{formatter: formatter, out: out, level: level}
}

// Enabled reports whether level meets the handler's minimum level.
func (h *FormatterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle renders one slog.Record through the wrapped LogFormatter.
func (h *FormatterHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(map[string]interface{}, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	entry := LogEntry{
		Timestamp: record.Time,
		Level:     slogLevelToLogLevel(record.Level),
		Message:   record.Message,
		Fields:    fields,
	}
	_, err := fmt.Fprintln(h.out, h.formatter.Format(entry))
	return err
}

// WithAttrs returns a handler that includes attrs in every subsequent entry.
func (h *FormatterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &FormatterHandler{formatter: h.formatter, out: h.out, level: h.level, attrs: combined}
}

// WithGroup is a no-op: LogFormatter's flat field map has no group concept.
func (h *FormatterHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogLevelToLogLevel(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}

// NewWithFormat creates a Logger using the named console format: "text" and
// "color" route through FormatterHandler; anything else (including "json",
// the default) uses the standard JSON handler.
func NewWithFormat(format string, level slog.Level) *Logger {
	switch format {
	case "text":
		return NewWithHandler(NewFormatterHandler(&TextFormatter{}, os.Stderr, level))
	case "color":
		return NewWithHandler(NewFormatterHandler(&ColorFormatter{}, os.Stderr, level))
	default:
		return New(level)
	}
}

// Package logger builds the process-wide slog sink: a rotating JSON log file
// capturing everything at debug and above, plus a console stream that only
// shows the configured level (info by default) so long runs stay readable.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log sink.
type Options struct {
	// Level is the console threshold ("debug", "info", "warn", "error").
	// The file sink always records debug and above.
	Level string
	// FilePath is the rotating log file. Empty disables the file sink.
	FilePath string
	// MaxSizeMB and MaxBackups bound the rotating file.
	MaxSizeMB  int
	MaxBackups int
	// Console defaults to os.Stdout.
	Console io.Writer
}

// New builds the logger. The returned closer flushes and closes the file sink.
func New(opts Options) (*slog.Logger, func() error, error) {
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	consoleHandler := slog.NewTextHandler(opts.Console, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})

	if opts.FilePath == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	handler := &teeHandler{handlers: []slog.Handler{fileHandler, consoleHandler}}
	return slog.New(handler), rotator.Close, nil
}

// ParseLevel converts a string to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// teeHandler fans records out to several handlers, each applying its own
// level filter.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: handlers}
}

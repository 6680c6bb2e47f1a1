// Package logging configures the application-wide structured loggers.
// Console output is human-readable text on stderr; when file logging is
// enabled a JSON handler writes to a size-rotated log file.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu          sync.Mutex
	rootLogger  *slog.Logger
	fileRotator *lumberjack.Logger
)

// Config controls logger initialization.
type Config struct {
	Debug      bool   // lower the console level to debug
	FileOutput bool   // also write JSON logs to Path
	Path       string // log file path
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to retain
}

// Init sets up the default loggers. Safe to call more than once; the last
// call wins (used by tests).
func Init(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileOutput && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err == nil {
			fileRotator = &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				Compress:   true,
			}
			handlers = append(handlers, slog.NewJSONHandler(fileRotator, &slog.HandlerOptions{Level: level}))
		} else {
			slog.Warn("log file directory not writable, console logging only", "path", cfg.Path, "error", err)
		}
	}

	rootLogger = slog.New(&fanoutHandler{handlers: handlers})
	slog.SetDefault(rootLogger)
}

// ForService returns a child logger tagged with the service name.
func ForService(service string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if rootLogger == nil {
		return slog.Default().With("service", service)
	}
	return rootLogger.With("service", service)
}

// Close flushes and closes the file rotator if one is active.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileRotator != nil {
		return fileRotator.Close()
	}
	return nil
}

// fanoutHandler duplicates records to multiple handlers so the console and
// the log file can use different formats.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

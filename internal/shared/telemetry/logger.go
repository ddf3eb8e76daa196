package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	service = "knowledge-hub"
	level   = new(slog.LevelVar)
	logger  = newLogger(os.Stdout)
)

// Init sets the service name and minimum level for all subsequent log lines.
func Init(serviceName, lvl string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(serviceName) != "" {
		service = serviceName
	}
	level.Set(ParseLevel(lvl))
	logger = newLogger(os.Stdout)
}

// SetOutput redirects log output, returning a func that restores stdout.
func SetOutput(w io.Writer) func() {
	mu.Lock()
	logger = newLogger(w)
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = newLogger(os.Stdout)
		mu.Unlock()
	}
}

// Logger exposes the underlying slog logger for libraries that want one.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	write(slog.LevelInfo, msg, fields)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	write(slog.LevelWarn, msg, fields)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	write(slog.LevelError, msg, fields)
}

// Debug writes a debug-level log line with the given fields.
func Debug(msg string, fields map[string]any) {
	write(slog.LevelDebug, msg, fields)
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func write(lvl slog.Level, msg string, fields map[string]any) {
	l := Logger()
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	l.LogAttrs(ctx, lvl, msg, attrs...)
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}

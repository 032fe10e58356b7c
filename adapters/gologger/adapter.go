// Package gologger bridges go-logger/glog to log/slog so the binary has a
// concrete sink behind the glog interfaces the library code depends on.
package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// SlogLogger implements glog.Logger. Trace maps to slog debug.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
	exit   func(int)
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger, exit: os.Exit}
}

func (l *SlogLogger) Trace(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
	if l.exit != nil {
		l.exit(1)
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) glog.Logger {
	next := *l
	next.ctx = ctx
	return &next
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg, args...)
}

// SlogProvider hands out SlogLoggers tagged with a "logger" attribute.
type SlogProvider struct {
	base *slog.Logger
}

func NewSlogProvider(base *slog.Logger) *SlogProvider {
	if base == nil {
		base = slog.Default()
	}
	return &SlogProvider{base: base}
}

func (p *SlogProvider) GetLogger(name string) glog.Logger {
	logger := p.base
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		logger = logger.With("logger", trimmed)
	}
	return NewSlogLogger(logger)
}

// NewProvider builds a provider writing to w. format is "json" or "text";
// level is one of debug, info, warn, error.
func NewProvider(w io.Writer, format string, level string) *SlogProvider {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return NewSlogProvider(slog.New(handler))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.LoggerProvider = (*SlogProvider)(nil)
)

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"github.com/freekieb7/grafana-provisioner/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Production logs JSON to stdout, development uses the charm
// console handler on stderr. extra handlers (the OTel bridge) receive every record as well.
// The returned closer releases the log file, if one was configured.
func New(cfg config.Config, extra ...slog.Handler) (*slog.Logger, io.Closer) {
	return build(cfg, os.Stdout, os.Stderr, extra...)
}

func build(cfg config.Config, stdout, stderr io.Writer, extra ...slog.Handler) (*slog.Logger, io.Closer) {
	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	if cfg.Server.Environment == config.EnvironmentProduction {
		handlers = append(handlers, slog.NewJSONHandler(stdout, &slog.HandlerOptions{
			Level:     cfg.Log.Level,
			AddSource: true,
		}))
	} else {
		console := charmLog.NewWithOptions(stderr, charmLog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
		})
		if level, err := charmLog.ParseLevel(strings.ToLower(cfg.Log.Level.String())); err == nil {
			console.SetLevel(level)
		}
		handlers = append(handlers, console)
	}

	if cfg.Log.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: cfg.Log.Level}))
		closer = file
	}

	for _, h := range extra {
		if h != nil {
			handlers = append(handlers, h)
		}
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = NewMultiHandler(handlers...)
	}

	logger := slog.New(ContextHandler{Handler: handler}).With(
		"service", cfg.Telemetry.ServiceName,
		"version", cfg.Telemetry.ServiceVersion,
		"environment", cfg.Telemetry.Environment,
	)

	return logger, closer
}

// Discard returns a logger that drops everything, for tests and one-shot commands.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type requestIDKey struct{}

// WithRequestID stores the inbound request id so every log line written with ctx carries it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextHandler adds the request id from the context to each record.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// MultiHandler sends logs to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether any handler handles records at the given level
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to every handler that accepts its level. A failing handler does not
// stop the others.
func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
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

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithAttrs(attrs))
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithGroup(name))
	}
	return &MultiHandler{handlers: newHandlers}
}

// Package logger configures the process-wide slog logger and carries
// request-scoped log fields through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

// Options selects the handler installed by Setup.
type Options struct {
	Env         string // "development" or "production"
	Level       string // debug, info, warn, error; empty picks by Env
	OTel        bool   // export through the global OTel logger provider
	ServiceName string
	Output      io.Writer // defaults to os.Stderr
}

// Setup installs the default slog logger.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	production := opts.Env == "production"

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level, production)}

	var handler slog.Handler
	switch {
	case production && opts.OTel:
		handler = otelslog.NewHandler(
			opts.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	case production:
		handler = NewTraceHandler(slog.NewJSONHandler(out, hopts))
	default:
		handler = NewTraceHandler(slog.NewTextHandler(out, hopts))
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog.Level. Unknown or empty names
// give Info in production and Debug otherwise.
func ParseLevel(name string, production bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// TraceHandler adds trace/span ids and context log fields to every record.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.LearningItemID != "" {
		r.AddAttrs(slog.String("learning_item_id", fields.LearningItemID))
	}
	if fields.SubmissionID != "" {
		r.AddAttrs(slog.String("submission_id", fields.SubmissionID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Package logging provides the process-wide structured logger. Every
// narrow per-package Logger interface (internal/embedding, internal/rerank,
// internal/store, internal/loader) is satisfied by Logger below, since they
// all declare the same Warnf(format string, args ...any) shape. Grounded on
// internal/observability/logging.go's InitLogger and ctxlogger.go's
// LoggerWithTrace.
package logging

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: JSON output to stdout, and
// also to logPath (append mode) when non-empty, level from levelStr (defaults to
// info on an empty or unparseable value), and redirects the standard
// library logger so third-party code's log.Print calls are captured too.
func Init(logPath, levelStr string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = io.MultiWriter(os.Stdout, f)
		} else {
			fmt.Fprintf(os.Stderr, "logging: open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Caller().Logger()

	level := strings.ToLower(strings.TrimSpace(levelStr))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// Logger adapts the global zerolog logger to the Warnf/Infof/Errorf shape
// each component package declares as its own narrow logging capability.
type Logger struct{}

// New returns a Logger backed by the global zerolog logger.
func New() Logger { return Logger{} }

func (Logger) Warnf(format string, args ...any) {
	log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (Logger) Infof(format string, args ...any) {
	log.Info().Msg(fmt.Sprintf(format, args...))
}

func (Logger) Errorf(format string, args ...any) {
	log.Error().Msg(fmt.Sprintf(format, args...))
}

type traceCtxKey struct{}

type traceIDs struct{ traceID, spanID string }

// ContextWithTrace attaches trace/span identifiers to ctx for later
// enrichment via WithTrace. Call sites that already carry an
// OpenTelemetry span should derive these from trace.SpanContextFromContext
// instead; this helper exists for callers (background jobs, tests) that
// only have raw IDs.
func ContextWithTrace(ctx context.Context, traceID, spanID string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, traceIDs{traceID: traceID, spanID: spanID})
}

// WithTrace returns a zerolog.Logger enriched with trace_id/span_id fields
// when ctx carries them, otherwise the plain global logger. Grounded on
// ctxlogger.go's LoggerWithTrace, pared down from OpenTelemetry
// span-context extraction to the plain context-value form that
// ContextWithTrace sets.
func WithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if ids, ok := ctx.Value(traceCtxKey{}).(traceIDs); ok {
		enriched := l.With().Str("trace_id", ids.traceID).Str("span_id", ids.spanID).Logger()
		return &enriched
	}
	return &l
}

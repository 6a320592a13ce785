package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/dshills/statekit/internal/deepcopy"
)

// LoggerName is the registration name of the built-in logging stage.
const LoggerName = "logger"

// LoggerPriority places logging first in the chain.
const LoggerPriority = 0

// LogFilter selects which mutation kinds the logging stage reports.
type LogFilter int

const (
	// LogAll reports every transition.
	LogAll LogFilter = iota

	// LogState reports only state-kind transitions.
	LogState

	// LogActions reports only action dispatches.
	LogActions
)

// Logger is the built-in observational stage. It never rewrites the context;
// it records the transition, forwards to the rest of the chain, then records
// the outcome.
type Logger struct {
	logger       *slog.Logger
	filter       LogFilter
	includeState bool
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithLogOutput sets the slog logger output.
func WithLogOutput(l *slog.Logger) LoggerOption {
	return func(lg *Logger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithLogFilter restricts logging to a subset of mutation kinds.
func WithLogFilter(f LogFilter) LoggerOption {
	return func(lg *Logger) {
		lg.filter = f
	}
}

// WithLogState includes before/after state trees in the log output.
func WithLogState() LoggerOption {
	return func(lg *Logger) {
		lg.includeState = true
	}
}

// NewLogger creates the logging stage.
func NewLogger(opts ...LoggerOption) *Logger {
	lg := &Logger{logger: slog.Default()}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// Name implements Middleware.
func (lg *Logger) Name() string { return LoggerName }

// Priority implements Middleware.
func (lg *Logger) Priority() int { return LoggerPriority }

// Handle implements Middleware.
func (lg *Logger) Handle(ctx context.Context, mc *Context, next Next) error {
	if !lg.enabled(mc.Kind) {
		return next()
	}

	attrs := []any{
		"store", mc.StoreID,
		"kind", string(mc.Kind),
	}
	if mc.Payload != nil {
		attrs = append(attrs, "payload", mc.Payload)
	}
	if lg.includeState {
		attrs = append(attrs, "before", deepcopy.Map(mc.State))
	}
	lg.logger.Info("mutation", attrs...)

	start := time.Now()
	err := next()
	elapsed := time.Since(start)

	done := []any{
		"store", mc.StoreID,
		"kind", string(mc.Kind),
		"elapsed", elapsed,
	}
	if lg.includeState {
		done = append(done, "after", deepcopy.Map(mc.State))
	}
	if err != nil {
		done = append(done, "error", err)
		lg.logger.Error("mutation failed", done...)
	} else {
		lg.logger.Info("mutation complete", done...)
	}
	return err
}

func (lg *Logger) enabled(k Kind) bool {
	switch lg.filter {
	case LogState:
		return k.IsState()
	case LogActions:
		return !k.IsState()
	default:
		return true
	}
}

// Package logging provides structured logging infrastructure for cropcare.
// It wraps log/slog with context-aware enrichment and domain-specific helpers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// UserIDKey is the context key for the signed-in user.
	UserIDKey contextKey = "user_id"
	// OperationIDKey is the context key for pending operation IDs.
	OperationIDKey contextKey = "operation_id"
	// AnalysisIDKey is the context key for analysis IDs.
	AnalysisIDKey contextKey = "analysis_id"
	// EntityTypeKey is the context key for the entity type being synced.
	EntityTypeKey contextKey = "entity_type"
)

// enrichKeys are copied from the context onto every *Context log record, in this order.
var enrichKeys = []contextKey{CorrelationIDKey, UserIDKey, OperationIDKey, AnalysisIDKey, EntityTypeKey}

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with context enrichment. Loggers derived with
// With share their parent's level.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig())
	}
	return global
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize time format
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+2*len(enrichKeys))
	for _, key := range enrichKeys {
		if v := ctx.Value(key); v != nil {
			enriched = append(enriched, string(key), v)
		}
	}
	return append(enriched, args...)
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithUserID adds the signed-in user ID to the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// WithOperationID adds a pending operation ID to the context.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// WithAnalysisID adds an analysis ID to the context.
func WithAnalysisID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AnalysisIDKey, id)
}

// WithEntityType adds the synced entity type to the context.
func WithEntityType(ctx context.Context, entity string) context.Context {
	return context.WithValue(ctx, EntityTypeKey, entity)
}

// withFallback stores v under key unless the context already carries one,
// so that helpers taking an explicit id never log it twice.
func withFallback(ctx context.Context, key contextKey, v string) context.Context {
	if v == "" || ctx.Value(key) != nil {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

// --- Domain-specific logging helpers ---

// LogDrainStart logs the start of a sync drain pass.
func LogDrainStart(ctx context.Context, logger *Logger, queued int) {
	logger.InfoContext(ctx, "sync drain started", "queued", queued)
}

// LogDrainComplete logs the outcome of a sync drain pass.
func LogDrainComplete(ctx context.Context, logger *Logger, applied, failed, dropped int, duration time.Duration) {
	logger.InfoContext(ctx, "sync drain completed",
		"applied", applied,
		"failed", failed,
		"dropped", dropped,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogOperationApplied logs a queued operation that reached the backend.
func LogOperationApplied(ctx context.Context, logger *Logger, opID, entity, action string) {
	ctx = withFallback(withFallback(ctx, OperationIDKey, opID), EntityTypeKey, entity)
	logger.DebugContext(ctx, "queued operation applied", "action", action)
}

// LogOperationFailed logs a queued operation that will be retried on the next drain.
func LogOperationFailed(ctx context.Context, logger *Logger, opID string, retryCount int, err error) {
	ctx = withFallback(ctx, OperationIDKey, opID)
	logger.WarnContext(ctx, "queued operation failed",
		"retry_count", retryCount,
		"error", err.Error(),
	)
}

// LogOperationDropped logs a queued operation abandoned at the retry ceiling.
// The mutation is lost; nothing else records it.
func LogOperationDropped(ctx context.Context, logger *Logger, opID, entity, action string, retryCount int) {
	ctx = withFallback(withFallback(ctx, OperationIDKey, opID), EntityTypeKey, entity)
	logger.WarnContext(ctx, "queued operation dropped after retry ceiling",
		"action", action,
		"retry_count", retryCount,
	)
}

// LogCacheSweep logs removal of expired cache entries.
func LogCacheSweep(ctx context.Context, logger *Logger, removed int64) {
	logger.DebugContext(ctx, "cache sweep", "removed", removed)
}

// LogStorageQuota logs that local storage is full.
func LogStorageQuota(ctx context.Context, logger *Logger, key string, err error) {
	logger.WarnContext(ctx, "local storage quota exceeded",
		"cache_key", key,
		"error", err.Error(),
	)
}

// LogAnalysisTransition logs an analysis status change.
func LogAnalysisTransition(ctx context.Context, logger *Logger, analysisID, from, to string) {
	ctx = withFallback(ctx, AnalysisIDKey, analysisID)
	logger.InfoContext(ctx, "analysis status changed",
		"from", from,
		"to", to,
	)
}

// LogStreamCancelled logs a chat stream the user cancelled.
func LogStreamCancelled(ctx context.Context, logger *Logger, receivedChars int) {
	logger.InfoContext(ctx, "chat stream cancelled", "received_chars", receivedChars)
}

// LogTranslationFallback logs a translation failure that fell back to the original text.
func LogTranslationFallback(ctx context.Context, logger *Logger, target string, err error) {
	logger.WarnContext(ctx, "translation failed, showing original text",
		"target_language", target,
		"error", err.Error(),
	)
}

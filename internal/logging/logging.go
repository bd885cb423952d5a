// Package logging provides structured JSON logging via log/slog, with
// session and rule identifiers threaded through context values instead
// of being passed at every call site. Writes to a single process-wide
// stream rather than a per-session log file, since sxn has no
// persistent daemon session to scope a log file to.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelEnvVar is the environment variable controlling log verbosity,
// consulted when no level is supplied to Init.
const LevelEnvVar = "SXN_LOG_LEVEL"

type contextKey int

const (
	sessionIDKey contextKey = iota
	ruleKeyKey
	componentKey
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init installs the package-level logger, writing JSON lines to w at
// level (parsed case-insensitively; unrecognized values default to
// info). If levelOverride is empty, SXN_LOG_LEVEL is consulted.
func Init(w *os.File, levelOverride string) {
	level := levelOverride
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// WithSession attaches a session name to ctx for every subsequent log call.
func WithSession(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sessionIDKey, name)
}

// WithRule attaches a rule key to ctx for every subsequent log call.
func WithRule(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ruleKeyKey, key)
}

// WithComponent attaches a component name (e.g. "orchestrator", "store").
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentKey, name)
}

func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }
func Info(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelInfo, msg, attrs...) }
func Warn(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelWarn, msg, attrs...) }
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := get()
	all := attrsFromContext(ctx)
	all = append(all, attrs...)
	l.Log(ctx, level, msg, all...)
}

func attrsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var attrs []any
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	if v, ok := ctx.Value(ruleKeyKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("rule_key", v))
	}
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("component", v))
	}
	return attrs
}

// Package logging builds the process logger and request-scoped loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/contractlens/backend/internal/correlation"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Config selects the log level (debug, info, warn, error) and format (json, text).
type Config struct {
	Level  string
	Format string
}

// New builds a logger writing to w. A nil writer means stdout.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Init builds the logger and installs it as the slog default.
func Init(cfg Config) *slog.Logger {
	logger := New(cfg, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithUserID stores the authenticated user on the context for log enrichment.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// FromContext returns base enriched with the correlation and user IDs found
// in ctx. A nil base uses the slog default.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := correlation.GetID(ctx); id != "" {
		base = base.With("correlation_id", id)
	}
	if uid, ok := ctx.Value(userIDKey).(string); ok && uid != "" {
		base = base.With("user_id", uid)
	}
	return base
}

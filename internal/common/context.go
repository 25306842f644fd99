package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID    contextKey = "request_id"
	ContextKeySubscriberID contextKey = "subscriber_id"
	ContextKeyLogger       contextKey = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithSubscriberID adds the authenticated subscriber ID to the context
func WithSubscriberID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySubscriberID, id)
}

// SubscriberIDFromContext extracts the subscriber ID from context
func SubscriberIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeySubscriberID).(string); ok {
		return id
	}
	return ""
}

// WithLogger stores a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ContextKeyLogger, logger)
}

// LoggerFromContext returns the request-scoped logger, falling back to fallback and then slog.Default.
// Request and subscriber ids found in ctx are attached.
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ContextKeyLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	logger := fallback
	if logger == nil {
		logger = slog.Default()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		logger = logger.With("request_id", rid)
	}
	if sid := SubscriberIDFromContext(ctx); sid != "" {
		logger = logger.With("subscriber_id", sid)
	}
	return logger
}

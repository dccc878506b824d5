package logger

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	agencyIDKey  contextKey = "agency_id"
	sellerIDKey  contextKey = "seller_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID records the request ID in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithAgencyID records the tenant agency in ctx
func WithAgencyID(ctx context.Context, agencyID uuid.UUID) context.Context {
	return context.WithValue(ctx, agencyIDKey, agencyID)
}

// WithSellerID records the authenticated seller in ctx
func WithSellerID(ctx context.Context, sellerID uuid.UUID) context.Context {
	return context.WithValue(ctx, sellerIDKey, sellerID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetAgencyID retrieves the agency ID from context, uuid.Nil if absent
func GetAgencyID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(agencyIDKey).(uuid.UUID)
	return id
}

// GetSellerID retrieves the seller ID from context, uuid.Nil if absent
func GetSellerID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(sellerIDKey).(uuid.UUID)
	return id
}

// ContextFields returns the correlation fields carried by ctx:
// trace_id, span_id, request_id, agency_id and seller_id when present.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetAgencyID(ctx); id != uuid.Nil {
		fields = append(fields, zap.String("agency_id", id.String()))
	}
	if id := GetSellerID(ctx); id != uuid.Nil {
		fields = append(fields, zap.String("seller_id", id.String()))
	}
	return fields
}

// L returns the context logger enriched with the correlation fields.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return FromContext(ctx).With(ContextFields(ctx)...)
}

// Bind is L for components that own their logger instead of reading it from ctx
func Bind(ctx context.Context, logger *zap.Logger) *zap.Logger {
	return logger.With(ContextFields(ctx)...)
}

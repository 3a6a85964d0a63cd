package logger

import (
	"context"

	"go.uber.org/zap"

	"shiftoffer_backend/pkg/contextkeys"
)

const (
	requestIDKey     = contextkeys.RequestIDKey
	userIDKey        = contextkeys.UserIDKey
	correlationIDKey = contextkeys.CorrelationIDKey
)

// WithRequestID добавляет request ID в context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID добавляет user ID в context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithCorrelationID добавляет correlation ID в context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// GetRequestID извлекает request ID из context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID извлекает user ID из context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// ContextFields возвращает поля request_id/user_id/correlation_id из контекста
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if userID := GetUserID(ctx); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok && correlationID != "" {
		fields = append(fields, zap.String("correlation_id", correlationID))
	}
	return fields
}

// FromContext создает логгер с полями из context
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		l = GetLogger()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}

// CtxInfo логирует info с контекстом
func CtxInfo(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, append(ContextFields(ctx), fields...)...)
}

// CtxWarn логирует warning с контекстом
func CtxWarn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, append(ContextFields(ctx), fields...)...)
}

// CtxError логирует error с контекстом
func CtxError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	GetLogger().Error(msg, append(append(ContextFields(ctx), zap.Error(err)), fields...)...)
}

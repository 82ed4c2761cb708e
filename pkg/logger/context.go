package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey 日志上下文键
type contextKey string

const (
	traceIDKey  contextKey = "trace_id"
	userIDKey   contextKey = "user_id"
	socketIDKey contextKey = "socket_id"
	loggerKey   contextKey = "logger"
)

// WithTraceID 写入 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithUserID 写入用户 ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSocketID 写入连接 ID
func WithSocketID(ctx context.Context, socketID string) context.Context {
	return context.WithValue(ctx, socketIDKey, socketID)
}

// TraceID 读取 TraceID；未显式设置时回退到 OpenTelemetry span
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok && id != "" {
		return id
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// UserID 读取用户 ID
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// SocketID 读取连接 ID
func SocketID(ctx context.Context) string {
	id, _ := ctx.Value(socketIDKey).(string)
	return id
}

// NewContext 将 Logger 存入 Context
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext 取出 Context 中的 Logger，不存在时返回 fallback
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
		return l
	}
	return fallback
}

// extractFields 提取上下文字段
func extractFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 3)
	if id := TraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	if id := UserID(ctx); id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	if id := SocketID(ctx); id != "" {
		fields = append(fields, zap.String("socket_id", id))
	}
	return fields
}

package marquee

import "strings"

const (
	// ContextTraceIDKey 链路追踪 trace_id 键
	ContextTraceIDKey = "trace_id"
	// ContextUserIDKey 已认证用户 id 键
	ContextUserIDKey = "user_id"
)

// GetContextTraceID 获取上下文链路追踪 trace_id
func GetContextTraceID(ctx *Context) string {
	return ctx.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置上下文链路追踪 trace_id
func SetContextTraceID(ctx *Context, traceID string) {
	ctx.Set(ContextTraceIDKey, traceID)
}

// GetContextUserID 获取上下文用户 id
func GetContextUserID(ctx *Context) string {
	return ctx.GetString(ContextUserIDKey)
}

// SetContextUserID 设置上下文用户 id
func SetContextUserID(ctx *Context, userID string) {
	ctx.Set(ContextUserIDKey, userID)
}

// bearerToken 解析 Authorization: Bearer <token>
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

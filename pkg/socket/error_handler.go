package socket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// ErrorHandler 将错误转换为信封发送给客户端并记录日志
type ErrorHandler struct {
	log        logger.Logger
	production bool
	now        func() time.Time
}

// NewErrorHandler 创建错误处理器；production 为 true 时信封不带堆栈且隐藏内部错误消息
func NewErrorHandler(log logger.Logger, production bool) *ErrorHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ErrorHandler{log: log, production: production, now: time.Now}
}

// Handle 处理事件错误：有应答回调时通过回调返回信封，否则发送 "error" 事件
func (h *ErrorHandler) Handle(ctx context.Context, err error, conn *Conn, event string, ack AckFunc) Error {
	se := normalize(err)
	env := toEnvelope(se, event, !h.production, h.now())
	h.logError(ctx, se, conn, event)

	if ack != nil {
		ack(env)
		return se
	}
	if conn != nil {
		if emitErr := conn.Emit(ErrorEvent, env); emitErr != nil {
			h.log.DebugContext(ctx, "emit error envelope failed", zap.Error(emitErr))
		}
	}
	return se
}

// HandleFatal 处理连接级错误：发送 "error" 事件后断开连接
func (h *ErrorHandler) HandleFatal(ctx context.Context, err error, conn *Conn, event string) Error {
	se := h.Handle(ctx, err, conn, event, nil)
	if conn != nil {
		reason := ReasonServerDisconnect
		if se.Code() == CodeAuth {
			reason = ReasonUnauthorized
		}
		conn.Disconnect(reason)
	}
	return se
}

func (h *ErrorHandler) logError(ctx context.Context, se Error, conn *Conn, event string) {
	fields := []zap.Field{
		zap.String("code", se.Code()),
		zap.String("event", event),
		zap.String("error", se.Error()),
	}
	if conn != nil {
		fields = append(fields, zap.String("namespace", conn.ns.path))
		if logger.SocketID(ctx) == "" {
			fields = append(fields, zap.String("socket_id", conn.id))
		}
		if logger.UserID(ctx) == "" {
			if uid := conn.UserID(); uid != "" {
				fields = append(fields, zap.String("user_id", uid))
			}
		}
	}

	if se.Operational() {
		h.log.WarnContext(ctx, "socket event error", fields...)
		return
	}
	if ie, ok := se.(*InternalError); ok && ie.Stack != "" {
		fields = append(fields, zap.String("stack", ie.Stack))
	}
	h.log.ErrorContext(ctx, "socket event error", fields...)
}

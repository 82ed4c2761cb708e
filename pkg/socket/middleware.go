package socket

import (
	"context"
	"errors"
)

// Middleware 事件中间件
//
// 返回 false 表示显式拒绝；返回错误同样视为拒绝。
type Middleware func(ctx context.Context, conn *Conn, payload any) (bool, error)

// MiddlewareRunner 顺序执行事件中间件，遇到第一个拒绝即停止
type MiddlewareRunner struct{}

// NewMiddlewareRunner 创建中间件执行器
func NewMiddlewareRunner() *MiddlewareRunner {
	return &MiddlewareRunner{}
}

// Run 执行中间件链
//
// 拒绝统一转换为 *MiddlewareError；已经是 *MiddlewareError 的原样返回。
// 其他 socket.Error（如 *AuthError）保留原类型，以便错误处理器区分错误码。
func (r *MiddlewareRunner) Run(ctx context.Context, mws []Middleware, conn *Conn, payload any, event string) error {
	for _, mw := range mws {
		if mw == nil {
			continue
		}
		ok, err := mw(ctx, conn, payload)
		if err != nil {
			return wrapMiddlewareError(err, event)
		}
		if !ok {
			return &MiddlewareError{Event: event, Message: MsgMiddlewareRej}
		}
	}
	return nil
}

func wrapMiddlewareError(err error, event string) error {
	var me *MiddlewareError
	if errors.As(err, &me) {
		return err
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &MiddlewareError{Event: event, Message: err.Error(), Err: err}
}

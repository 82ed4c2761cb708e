package socket

import "context"

// Registrar 为连接绑定控制器声明的事件监听器
type Registrar struct {
	dispatcher *Dispatcher
}

// NewRegistrar 创建绑定器
func NewRegistrar(d *Dispatcher) *Registrar {
	return &Registrar{dispatcher: d}
}

// RegisterEvents 绑定事件，每个连接只允许绑定一次
func (r *Registrar) RegisterEvents(conn *Conn, events []EventDescriptor, ctrl any, requireAuth bool) error {
	if !conn.bound.CompareAndSwap(false, true) {
		return ErrAlreadyBound
	}
	for _, ev := range events {
		ev := ev
		conn.On(ev.EventName, func(ctx context.Context, args ...any) {
			r.dispatcher.Dispatch(ctx, ctrl, ev, conn, args, requireAuth)
		})
	}
	return nil
}

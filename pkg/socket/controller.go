package socket

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// Controller 可注册到 Server 的控制器
type Controller interface {
	// Attach 由 Server 在注册时调用，绑定命名空间
	Attach(ns *Namespace)
}

// BaseController 控制器基类，提供房间与广播辅助方法
//
// 以指针嵌入后即可实现 Controller。未绑定命名空间时所有发送方法记录警告并直接返回。
type BaseController struct {
	ns  atomic.Pointer[Namespace]
	log logger.Logger
}

// NewBaseController 创建基类
func NewBaseController(log logger.Logger) *BaseController {
	if log == nil {
		log = logger.NewNop()
	}
	return &BaseController{log: log}
}

// Attach 绑定命名空间
func (b *BaseController) Attach(ns *Namespace) {
	b.ns.Store(ns)
}

// Namespace 已绑定的命名空间，未绑定为 nil
func (b *BaseController) Namespace() *Namespace {
	return b.ns.Load()
}

// Logger 控制器日志
func (b *BaseController) Logger() logger.Logger {
	if b.log == nil {
		return logger.NewNop()
	}
	return b.log
}

func (b *BaseController) bound(op string) (*Namespace, bool) {
	ns := b.ns.Load()
	if ns == nil {
		b.Logger().Warn("controller not attached to a server", zap.String("op", op))
		return nil, false
	}
	return ns, true
}

// EmitToRoom 向房间发送
func (b *BaseController) EmitToRoom(room, event string, data any) {
	ns, ok := b.bound("EmitToRoom")
	if !ok {
		return
	}
	if err := ns.EmitToRoom(room, event, data); err != nil {
		b.Logger().Warn("emit to room failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
	}
}

// Broadcast 向命名空间内所有连接发送
func (b *BaseController) Broadcast(event string, data any) {
	ns, ok := b.bound("Broadcast")
	if !ok {
		return
	}
	if err := ns.Broadcast(event, data); err != nil {
		b.Logger().Warn("broadcast failed", zap.String("event", event), zap.Error(err))
	}
}

// EmitToSocket 向指定连接发送
func (b *BaseController) EmitToSocket(connID, event string, data any) {
	ns, ok := b.bound("EmitToSocket")
	if !ok {
		return
	}
	if err := ns.EmitToSocket(connID, event, data); err != nil {
		b.Logger().Debug("emit to socket failed", zap.String("socket_id", connID), zap.String("event", event), zap.Error(err))
	}
}

// BroadcastExcept 向房间内除 exceptID 外的连接发送
func (b *BaseController) BroadcastExcept(room, exceptID, event string, data any) {
	ns, ok := b.bound("BroadcastExcept")
	if !ok {
		return
	}
	if err := ns.BroadcastExcept(room, exceptID, event, data); err != nil {
		b.Logger().Warn("broadcast except failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
	}
}

// SocketsInRoom 房间内连接 ID
func (b *BaseController) SocketsInRoom(room string) []string {
	ns, ok := b.bound("SocketsInRoom")
	if !ok {
		return nil
	}
	return ns.SocketsInRoom(room)
}

// Rooms 非空房间列表
func (b *BaseController) Rooms() []string {
	ns, ok := b.bound("Rooms")
	if !ok {
		return nil
	}
	return ns.Rooms()
}

// RoomsOf 连接所在房间
func (b *BaseController) RoomsOf(connID string) []string {
	ns, ok := b.bound("RoomsOf")
	if !ok {
		return nil
	}
	return ns.RoomsOf(connID)
}

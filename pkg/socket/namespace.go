package socket

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// ConnectHook 控制器可选实现：连接建立且事件绑定完成后调用
type ConnectHook interface {
	OnConnect(ctx context.Context, conn *Conn)
}

// DisconnectHook 控制器可选实现：连接断开、房间已清理后调用
type DisconnectHook interface {
	OnDisconnect(ctx context.Context, conn *Conn, reason string)
}

// ErrorHook 控制器可选实现：传输层异常时调用
type ErrorHook interface {
	OnError(ctx context.Context, conn *Conn, err error)
}

// Namespace 一个控制器对应的命名空间
type Namespace struct {
	path   string
	desc   NamespaceDescriptor
	ctrl   any
	server *Server
	conns  *connPool
	rooms  *roomTable
}

func newNamespace(s *Server, ctrl any, desc NamespaceDescriptor) *Namespace {
	return &Namespace{
		path:   desc.Path,
		desc:   desc,
		ctrl:   ctrl,
		server: s,
		conns:  newConnPool(0),
		rooms:  newRoomTable(s.config.MaxRoomSize),
	}
}

// Path 命名空间路径
func (ns *Namespace) Path() string { return ns.path }

// RequireAuth 是否要求认证
func (ns *Namespace) RequireAuth() bool { return ns.desc.RequireAuth }

// ============ 连接生命周期 ============

// accept 认证、绑定事件并通知控制器；失败时已发送错误并断开
func (ns *Namespace) accept(c *Conn) error {
	s := ns.server
	ctx := c.Context()

	if ns.desc.RequireAuth {
		if err := s.auth.Authenticate(ctx, c); err != nil {
			s.metrics.ConnectionRejected(ns.path, CodeAuth)
			s.errors.HandleFatal(ctx, err, c, "")
			return err
		}
		ctx = c.Context()
	}
	for _, g := range ns.desc.Guards {
		if err := g(ctx, c); err != nil {
			se := normalize(err)
			s.metrics.ConnectionRejected(ns.path, se.Code())
			s.errors.HandleFatal(ctx, se, c, "")
			return err
		}
	}

	if err := s.pool.add(c); err != nil {
		s.metrics.ConnectionRejected(ns.path, "capacity")
		s.errors.HandleFatal(ctx, &MiddlewareError{Message: "Server is at capacity", Err: err}, c, "")
		return err
	}
	_ = ns.conns.add(c)

	if err := s.registrar.RegisterEvents(c, s.registry.Events(ns.ctrl), ns.ctrl, ns.desc.RequireAuth); err != nil {
		s.log.Warn("bind events failed", zap.String("socket_id", c.id), zap.Error(err))
	}

	s.metrics.ConnectionOpened(ns.path)
	s.events.Publish(Lifecycle{
		Type:      LifecycleConnected,
		Namespace: ns.path,
		ConnID:    c.id,
		UserID:    c.UserID(),
	})
	s.log.Debug("socket connected",
		zap.String("namespace", ns.path),
		zap.String("socket_id", c.id),
		zap.String("user_id", c.UserID()),
	)

	if h, ok := ns.ctrl.(ConnectHook); ok {
		ns.safeHook(ctx, c, "connect", func() { h.OnConnect(ctx, c) })
	}
	return nil
}

// release 断开后的清理：先移出房间与连接池，再通知控制器
func (ns *Namespace) release(c *Conn) {
	s := ns.server
	reason := c.Reason()
	ctx := c.Context()

	left := ns.rooms.leaveAll(c)
	ns.conns.remove(c.id)
	s.pool.remove(c.id)

	if h, ok := ns.ctrl.(DisconnectHook); ok {
		// 连接上下文已取消，钩子使用独立上下文
		hctx := context.WithoutCancel(ctx)
		ns.safeHook(hctx, c, "disconnect", func() { h.OnDisconnect(hctx, c, reason) })
	}

	for _, r := range left {
		s.events.Publish(Lifecycle{
			Type:      LifecycleRoomLeft,
			Namespace: ns.path,
			ConnID:    c.id,
			UserID:    c.UserID(),
			Room:      r,
		})
	}
	s.metrics.ConnectionClosed(ns.path)
	s.metrics.RoomCount(ns.path, ns.rooms.len())
	s.events.Publish(Lifecycle{
		Type:      LifecycleDisconnected,
		Namespace: ns.path,
		ConnID:    c.id,
		UserID:    c.UserID(),
		Reason:    reason,
	})
	s.log.Debug("socket disconnected",
		zap.String("namespace", ns.path),
		zap.String("socket_id", c.id),
		zap.String("reason", reason),
	)
}

// transportError 传输层异常
func (ns *Namespace) transportError(c *Conn, err error) {
	ctx := c.Context()
	if h, ok := ns.ctrl.(ErrorHook); ok {
		ns.safeHook(ctx, c, "error", func() { h.OnError(ctx, c, err) })
		return
	}
	ns.server.log.Warn("socket transport error",
		zap.String("namespace", ns.path),
		zap.String("socket_id", c.id),
		zap.Error(err),
	)
}

func (ns *Namespace) safeHook(ctx context.Context, c *Conn, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ns.server.log.ErrorContext(ctx, "socket hook panic",
				zap.String("namespace", ns.path),
				zap.String("hook", name),
				zap.String("socket_id", c.id),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// ============ 房间 ============

func (ns *Namespace) join(c *Conn, room string) error {
	joined, err := ns.rooms.join(c, room)
	if err != nil || !joined {
		return err
	}
	ns.server.metrics.RoomCount(ns.path, ns.rooms.len())
	ns.server.events.Publish(Lifecycle{
		Type:      LifecycleRoomJoined,
		Namespace: ns.path,
		ConnID:    c.id,
		UserID:    c.UserID(),
		Room:      room,
	})
	return nil
}

func (ns *Namespace) leave(c *Conn, room string) {
	if !ns.rooms.leave(c, room) {
		return
	}
	ns.server.events.Publish(Lifecycle{
		Type:      LifecycleRoomLeft,
		Namespace: ns.path,
		ConnID:    c.id,
		UserID:    c.UserID(),
		Room:      room,
	})
}

// SocketsInRoom 房间内连接 ID（有序）
func (ns *Namespace) SocketsInRoom(room string) []string {
	return ns.rooms.memberIDs(room)
}

// Rooms 非空房间列表
func (ns *Namespace) Rooms() []string {
	return ns.rooms.names()
}

// RoomsOf 连接所在房间
func (ns *Namespace) RoomsOf(connID string) []string {
	c, ok := ns.conns.get(connID)
	if !ok {
		return nil
	}
	return c.Rooms()
}

// SweepEmptyRooms 回收空置超过 idle 的房间
func (ns *Namespace) SweepEmptyRooms(idle time.Duration) int {
	n := ns.rooms.sweep(idle, time.Now())
	if n > 0 {
		ns.server.metrics.RoomCount(ns.path, ns.rooms.len())
	}
	return n
}

// ============ 发送 ============

// EmitToRoom 向房间内所有连接发送
func (ns *Namespace) EmitToRoom(room, event string, data any) error {
	return ns.BroadcastExcept(room, "", event, data)
}

// BroadcastExcept 向房间内除 exceptID 外的连接发送；room 为空表示整个命名空间
func (ns *Namespace) BroadcastExcept(room, exceptID, event string, data any) error {
	msg, err := encodeFrame(event, nil, data)
	if err != nil {
		return err
	}
	var targets []*Conn
	if room == "" {
		targets = ns.conns.snapshot()
	} else {
		targets = ns.rooms.members(room)
	}
	for _, c := range targets {
		if c.id == exceptID {
			continue
		}
		_ = c.SendBytes(msg)
	}
	return nil
}

// Broadcast 向命名空间内所有连接发送
func (ns *Namespace) Broadcast(event string, data any) error {
	return ns.BroadcastExcept("", "", event, data)
}

// EmitToSocket 向指定连接发送
func (ns *Namespace) EmitToSocket(connID, event string, data any) error {
	c, ok := ns.conns.get(connID)
	if !ok {
		return ErrConnNotFound
	}
	return c.Emit(event, data)
}

// Conn 按 ID 获取连接
func (ns *Namespace) Conn(id string) (*Conn, bool) {
	return ns.conns.get(id)
}

// ConnectionCount 当前连接数
func (ns *Namespace) ConnectionCount() int {
	return ns.conns.len()
}

package socket

import (
	"context"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// 断开原因
const (
	ReasonClientDisconnect = "client disconnect"
	ReasonServerDisconnect = "server disconnect"
	ReasonTransportError   = "transport error"
	ReasonUnauthorized     = "unauthorized"
	ReasonInvalidFrames    = "too many invalid frames"
	ReasonShutdown         = "server shutdown"
)

// Handshake 握手信息
type Handshake struct {
	Token      string // 显式 token 字段（查询参数 token）
	Header     http.Header
	Query      url.Values
	RemoteAddr string
	Time       time.Time
}

// AckFunc 应答回调，同一请求只会生效一次
type AckFunc func(data any)

// Listener 事件监听器，args 末尾可能是 AckFunc
type Listener func(ctx context.Context, args ...any)

// Conn 单个客户端连接
type Conn struct {
	id        string
	ws        *websocket.Conn
	ns        *Namespace
	handshake Handshake
	identity  atomic.Pointer[Identity]

	// 事件监听
	mu        sync.RWMutex
	listeners map[string]Listener
	bound     atomic.Bool

	// 发送队列
	send chan []byte

	// 房间
	rooms sync.Map // room -> struct{}

	// 应用数据
	data sync.Map

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	reason    atomic.Value // string

	invalidFrames atomic.Int32
}

// newConn 创建连接；ws 为 nil 时只排队不发送（用于测试）
func newConn(ws *websocket.Conn, ns *Namespace, hs Handshake) *Conn {
	ctx, cancel := context.WithCancel(ns.server.ctx)
	if hs.Header == nil {
		hs.Header = http.Header{}
	}
	if hs.Query == nil {
		hs.Query = url.Values{}
	}
	if hs.Time.IsZero() {
		hs.Time = time.Now()
	}
	return &Conn{
		id:        uuid.NewString(),
		ws:        ws,
		ns:        ns,
		handshake: hs,
		listeners: make(map[string]Listener),
		send:      make(chan []byte, ns.server.config.SendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID 连接 ID
func (c *Conn) ID() string { return c.id }

// Namespace 所属命名空间
func (c *Conn) Namespace() *Namespace { return c.ns }

// Handshake 握手信息
func (c *Conn) Handshake() Handshake { return c.handshake }

// Identity 已挂载的身份，未认证为 nil
func (c *Conn) Identity() *Identity { return c.identity.Load() }

// SetIdentity 挂载身份
func (c *Conn) SetIdentity(id *Identity) { c.identity.Store(id) }

// UserID 身份中的用户 ID
func (c *Conn) UserID() string {
	if id := c.identity.Load(); id != nil {
		return id.UserID
	}
	return ""
}

// Context 连接上下文，携带 socket_id 与 user_id 供日志提取
func (c *Conn) Context() context.Context {
	ctx := logger.WithSocketID(c.ctx, c.id)
	if uid := c.UserID(); uid != "" {
		ctx = logger.WithUserID(ctx, uid)
	}
	return ctx
}

// Set 设置应用数据
func (c *Conn) Set(key string, value any) { c.data.Store(key, value) }

// Get 获取应用数据
func (c *Conn) Get(key string) (any, bool) { return c.data.Load(key) }

// RemoteAddr 远程地址
func (c *Conn) RemoteAddr() string { return c.handshake.RemoteAddr }

// ============ 事件 ============

// On 绑定事件监听器，同名覆盖
func (c *Conn) On(event string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = l
}

func (c *Conn) listener(event string) (Listener, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.listeners[event]
	return l, ok
}

// fire 分发一次入站事件，监听器内的 panic 在此兜底
func (c *Conn) fire(event string, args []any) {
	l, ok := c.listener(event)
	if !ok {
		c.ns.server.log.Debug("no listener for event",
			zap.String("namespace", c.ns.path),
			zap.String("event", event),
			zap.String("socket_id", c.id),
		)
		return
	}

	ctx := c.Context()
	defer func() {
		if r := recover(); r != nil {
			ack, _ := extractAck(args)
			c.ns.server.errors.Handle(ctx, &PanicError{Value: r, Stack: string(debug.Stack())}, c, event, ack)
		}
	}()
	l(ctx, args...)
}

// Emit 向该连接发送事件
func (c *Conn) Emit(event string, data any) error {
	b, err := encodeFrame(event, nil, data)
	if err != nil {
		return err
	}
	return c.SendBytes(b)
}

// ackFunc 构造只生效一次的应答回调
func (c *Conn) ackFunc(id uint64) AckFunc {
	var once sync.Once
	return func(data any) {
		once.Do(func() {
			b, err := encodeFrame(AckEvent, &id, data)
			if err != nil {
				c.ns.server.log.Error("encode ack failed",
					zap.String("socket_id", c.id),
					zap.Uint64("ack", id),
					zap.Error(err),
				)
				return
			}
			_ = c.SendBytes(b)
		})
	}
}

// SendBytes 发送已编码帧（非阻塞）
func (c *Conn) SendBytes(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.ns.server.metrics.FrameDropped(c.ns.path)
		return ErrSendQueueFull
	}
}

// ============ 房间 ============

// Join 加入房间
func (c *Conn) Join(room string) error {
	return c.ns.join(c, room)
}

// Leave 离开房间
func (c *Conn) Leave(room string) {
	c.ns.leave(c, room)
}

// Rooms 当前所在房间（有序）
func (c *Conn) Rooms() []string {
	rooms := make([]string, 0, 4)
	c.rooms.Range(func(key, _ any) bool {
		rooms = append(rooms, key.(string))
		return true
	})
	sort.Strings(rooms)
	return rooms
}

// InRoom 是否在房间中
func (c *Conn) InRoom(room string) bool {
	_, ok := c.rooms.Load(room)
	return ok
}

// ============ 生命周期 ============

// Disconnect 主动断开连接，排队中的帧会先尽量发出
func (c *Conn) Disconnect(reason string) {
	c.closeOnce.Do(func() {
		c.reason.Store(reason)
		c.closed.Store(true)
		c.cancel()
	})
}

// IsClosed 是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Reason 断开原因
func (c *Conn) Reason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// run 接入命名空间并运行读写循环，返回时连接已完全关闭
//
// 写循环先于认证启动，认证失败时错误信封仍能送达。
func (c *Conn) run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	if err := c.ns.accept(c); err != nil {
		c.Disconnect(ReasonServerDisconnect)
		<-done
		return
	}

	c.readPump()
	c.Disconnect(ReasonClientDisconnect)
	<-done
	c.ns.release(c)
}

// readPump 读循环；同一连接的事件按到达顺序串行处理
func (c *Conn) readPump() {
	cfg := c.ns.server.config
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.ns.transportError(c, err)
				c.Disconnect(ReasonTransportError)
			}
			return
		}

		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.ns.server.metrics.InvalidFrame(c.ns.path)
			if c.invalidFrames.Add(1) > cfg.MaxInvalidFrames {
				c.Disconnect(ReasonInvalidFrames)
				return
			}
			c.ns.server.errors.Handle(c.Context(), &ValidationError{
				Message: "Invalid frame: expected {\"event\": string, \"data\": any, \"ack\"?: number}",
			}, c, f.Event, nil)
			continue
		}
		c.invalidFrames.Store(0)

		args := make([]any, 0, 2)
		args = append(args, f.Data)
		if f.Ack != nil {
			args = append(args, c.ackFunc(*f.Ack))
		}
		c.fire(f.Event, args)
	}
}

// writePump 写循环；关闭时先冲刷队列再发送 close 帧
func (c *Conn) writePump() {
	cfg := c.ns.server.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.Reason()))
			return

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.Disconnect(ReasonTransportError)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Disconnect(ReasonTransportError)
				return
			}
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msg []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.ns.server.config.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// extractAck 若最后一个参数可调用则视为应答回调并移除
func extractAck(args []any) (AckFunc, []any) {
	if len(args) == 0 {
		return nil, args
	}
	switch fn := args[len(args)-1].(type) {
	case AckFunc:
		return fn, args[:len(args)-1]
	case func(any):
		return AckFunc(fn), args[:len(args)-1]
	default:
		return nil, args
	}
}

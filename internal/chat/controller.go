// Package chat 聊天命名空间：房间加入、消息、输入状态与在线成员
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/socket"
)

// member 房间成员（一个连接）
type member struct {
	connID   string
	userID   string
	username string
}

// Controller 聊天控制器
type Controller struct {
	*socket.BaseController

	mu    sync.Mutex
	rooms map[string][]member          // roomID -> 按加入顺序
	conns map[string]map[string]member // connID -> roomID -> 成员

	now func() time.Time
}

// New 创建控制器并在注册表中声明命名空间与事件
func New(reg *socket.Registry, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Controller{
		BaseController: socket.NewBaseController(log.With(zap.String("namespace", Namespace))),
		rooms:          make(map[string][]member),
		conns:          make(map[string]map[string]member),
		now:            time.Now,
	}

	reg.RegisterNamespace(c, socket.NamespaceDescriptor{Path: Namespace, RequireAuth: true})
	socket.Handle(reg, c, EventJoin, c.Join, socket.WithAck(), socket.WithDescription("join a chat room"))
	socket.Handle0(reg, c, EventLeave, c.Leave, socket.WithDescription("leave a chat room"))
	socket.Handle(reg, c, EventMessage, c.SendMessage, socket.WithAck(), socket.WithDescription("send a message to a room"))
	socket.Handle0(reg, c, EventTyping, c.Typing, socket.WithDescription("typing indicator"))
	return c
}

// Join 加入房间，返回房间内用户列表
func (c *Controller) Join(ctx context.Context, conn *socket.Conn, req *JoinRequest) (*JoinResponse, error) {
	room := RoomName(req.RoomID)
	if err := conn.Join(room); err != nil {
		return nil, err
	}

	m := member{connID: conn.ID(), userID: req.UserID, username: req.Username}
	c.mu.Lock()
	_, rejoined := c.conns[m.connID][req.RoomID]
	if rejoined {
		c.replaceLocked(req.RoomID, m)
	} else {
		c.rooms[req.RoomID] = append(c.rooms[req.RoomID], m)
	}
	if c.conns[m.connID] == nil {
		c.conns[m.connID] = make(map[string]member)
	}
	c.conns[m.connID][req.RoomID] = m
	users := c.usersLocked(req.RoomID)
	c.mu.Unlock()

	// 重复加入只刷新成员信息
	if !rejoined {
		c.BroadcastExcept(room, conn.ID(), EventUserJoined, Presence{
			RoomID:    req.RoomID,
			UserID:    m.userID,
			Username:  m.username,
			Timestamp: c.now(),
		})
	}
	c.Logger().DebugContext(ctx, "chat room joined", zap.String("room_id", req.RoomID), zap.Bool("rejoined", rejoined))
	return &JoinResponse{Success: true, Users: users}, nil
}

// Leave 离开房间，不在房间内时忽略
func (c *Controller) Leave(ctx context.Context, conn *socket.Conn, req *LeaveRequest) error {
	c.mu.Lock()
	m, ok := c.removeLocked(conn.ID(), req.RoomID)
	c.mu.Unlock()

	conn.Leave(RoomName(req.RoomID))
	if !ok {
		return nil
	}
	c.emitLeft(req.RoomID, m)
	c.Logger().DebugContext(ctx, "chat room left", zap.String("room_id", req.RoomID))
	return nil
}

// SendMessage 向房间广播消息（包括发送者）
func (c *Controller) SendMessage(_ context.Context, conn *socket.Conn, req *MessageRequest) (*MessageResponse, error) {
	c.mu.Lock()
	m, ok := c.conns[conn.ID()][req.RoomID]
	c.mu.Unlock()
	if !ok {
		return nil, socket.NewHandlerError("", ErrNotMember)
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    req.RoomID,
		UserID:    m.userID,
		Username:  m.username,
		Content:   req.Content,
		Timestamp: c.now(),
	}
	c.EmitToRoom(RoomName(req.RoomID), EventNewMessage, msg)
	return &MessageResponse{Success: true, MessageID: msg.ID, Timestamp: msg.Timestamp}, nil
}

// Typing 转发输入状态给房间内其他人
func (c *Controller) Typing(_ context.Context, conn *socket.Conn, req *TypingRequest) error {
	c.mu.Lock()
	m, ok := c.conns[conn.ID()][req.RoomID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.BroadcastExcept(RoomName(req.RoomID), conn.ID(), EventUserTyping, Typing{
		RoomID:   req.RoomID,
		UserID:   m.userID,
		Username: m.username,
		IsTyping: req.IsTyping,
	})
	return nil
}

// OnDisconnect 先清理成员表，再逐个房间通知离开
func (c *Controller) OnDisconnect(ctx context.Context, conn *socket.Conn, reason string) {
	c.mu.Lock()
	joined := c.conns[conn.ID()]
	left := make(map[string]member, len(joined))
	for roomID := range joined {
		if m, ok := c.removeLocked(conn.ID(), roomID); ok {
			left[roomID] = m
		}
	}
	c.mu.Unlock()

	for roomID, m := range left {
		c.emitLeft(roomID, m)
	}
	if len(left) > 0 {
		c.Logger().DebugContext(ctx, "chat member disconnected",
			zap.Int("rooms", len(left)),
			zap.String("reason", reason),
		)
	}
}

// Users 房间内用户（按加入顺序去重）
func (c *Controller) Users(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usersLocked(roomID)
}

func (c *Controller) emitLeft(roomID string, m member) {
	c.EmitToRoom(RoomName(roomID), EventUserLeft, Presence{
		RoomID:    roomID,
		UserID:    m.userID,
		Username:  m.username,
		Timestamp: c.now(),
	})
}

func (c *Controller) usersLocked(roomID string) []string {
	members := c.rooms[roomID]
	users := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m.userID]; ok {
			continue
		}
		seen[m.userID] = struct{}{}
		users = append(users, m.userID)
	}
	return users
}

func (c *Controller) replaceLocked(roomID string, m member) {
	for i, old := range c.rooms[roomID] {
		if old.connID == m.connID {
			c.rooms[roomID][i] = m
			return
		}
	}
}

func (c *Controller) removeLocked(connID, roomID string) (member, bool) {
	m, ok := c.conns[connID][roomID]
	if !ok {
		return member{}, false
	}
	delete(c.conns[connID], roomID)
	if len(c.conns[connID]) == 0 {
		delete(c.conns, connID)
	}

	members := c.rooms[roomID]
	for i, old := range members {
		if old.connID == connID {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(c.rooms, roomID)
	} else {
		c.rooms[roomID] = members
	}
	return m, true
}

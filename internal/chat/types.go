package chat

import "time"

// 命名空间与事件名
const (
	Namespace = "/chat"

	EventJoin    = "chat:join"
	EventLeave   = "chat:leave"
	EventMessage = "chat:message"
	EventTyping  = "chat:typing"

	EventNewMessage = "chat:new-message"
	EventUserJoined = "chat:user-joined"
	EventUserLeft   = "chat:user-left"
	EventUserTyping = "chat:user-typing"
)

// ErrNotMember 发送者不在房间内
const ErrNotMember = "not a member of this room"

// RoomName 房间 ID 对应的 socket 房间名
func RoomName(roomID string) string { return "room:" + roomID }

// ============ 入参 ============

// JoinRequest chat:join
type JoinRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	UserID   string `json:"userId" validate:"required,uuid"`
	Username string `json:"username" validate:"required,max=50"`
}

// LeaveRequest chat:leave
type LeaveRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

// MessageRequest chat:message
type MessageRequest struct {
	RoomID  string `json:"roomId" validate:"required,max=64"`
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// TypingRequest chat:typing
type TypingRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	IsTyping bool   `json:"isTyping"`
}

// ============ 应答 ============

// JoinResponse chat:join 应答，users 按加入顺序
type JoinResponse struct {
	Success bool     `json:"success"`
	Users   []string `json:"users" validate:"required"`
}

// MessageResponse chat:message 应答
type MessageResponse struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId" validate:"required,uuid"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// ============ 下发 ============

// Message chat:new-message
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Presence chat:user-joined / chat:user-left
type Presence struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Typing chat:user-typing
type Typing struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

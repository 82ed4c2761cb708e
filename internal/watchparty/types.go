package watchparty

import "time"

// 命名空间与事件名
const (
	Namespace = "/watch-party"

	EventCreate = "party:create"
	EventJoin   = "party:join"
	EventSync   = "party:sync"
	EventLeave  = "party:leave"

	EventMemberJoined = "party:member-joined"
	EventMemberLeft   = "party:member-left"
	EventState        = "party:state"
)

// 拒绝提示
const (
	MsgHostOnly = "only the host can control playback"
)

// RoomName 房间 ID 对应的 socket 房间名
func RoomName(partyID string) string { return "party:" + partyID }

// CreateRequest party:create
type CreateRequest struct {
	Title   string `json:"title" validate:"required,min=1,max=120"`
	MediaID string `json:"mediaId" validate:"required,min=1,max=64"`
}

// CreateResponse party:create 应答
type CreateResponse struct {
	Success bool   `json:"success"`
	PartyID string `json:"partyId" validate:"required,uuid"`
}

// PartyRequest party:join / party:leave
type PartyRequest struct {
	PartyID string `json:"partyId" validate:"required,uuid"`
}

// JoinResponse party:join 应答
type JoinResponse struct {
	Success bool       `json:"success"`
	Party   WatchParty `json:"party"`
	State   Playback   `json:"state"`
	Members []string   `json:"members" validate:"required"`
}

// SyncRequest party:sync
type SyncRequest struct {
	PartyID  string  `json:"partyId" validate:"required,uuid"`
	Position float64 `json:"position" validate:"gte=0"`
	Playing  bool    `json:"playing"`
}

// MemberEvent party:member-joined / party:member-left
type MemberEvent struct {
	PartyID   string    `json:"partyId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// StateEvent party:state
type StateEvent struct {
	PartyID string `json:"partyId"`
	Playback
}

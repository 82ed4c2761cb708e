// Package watchparty 观影房间命名空间：创建、加入、主持人同步播放进度
package watchparty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/cache"
	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/socket"
)

// Config 观影房间配置
type Config struct {
	StateTTL time.Duration `mapstructure:"state_ttl"` // 播放状态缓存时间
	PartyTTL time.Duration `mapstructure:"party_ttl"` // 房间元数据缓存时间
	IdleTTL  time.Duration `mapstructure:"idle_ttl"`  // 无活动多久后由清理任务删除
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		StateTTL: 6 * time.Hour,
		PartyTTL: 10 * time.Minute,
		IdleTTL:  24 * time.Hour,
	}
}

// Controller 观影房间控制器
type Controller struct {
	*socket.BaseController

	cfg     Config
	store   *Store
	cache   cache.Cache
	parties *cache.Loader[WatchParty]

	mu      sync.Mutex
	members map[string][]member            // partyID -> 按加入顺序
	conns   map[string]map[string]struct{} // connID -> partyID 集合

	now func() time.Time
}

type member struct {
	connID string
	userID string
}

// New 创建控制器并声明命名空间与事件
func New(reg *socket.Registry, store *Store, c cache.Cache, cfg *Config, log logger.Logger) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctrl := &Controller{
		BaseController: socket.NewBaseController(log.With(zap.String("namespace", Namespace))),
		cfg:            *cfg,
		store:          store,
		cache:          c,
		parties:        cache.NewLoader[WatchParty](c, cfg.PartyTTL),
		members:        make(map[string][]member),
		conns:          make(map[string]map[string]struct{}),
		now:            time.Now,
	}

	reg.RegisterNamespace(ctrl, socket.NamespaceDescriptor{Path: Namespace, RequireAuth: true})
	socket.Handle(reg, ctrl, EventCreate, ctrl.Create, socket.WithAck(), socket.WithDescription("create a watch party"))
	socket.Handle(reg, ctrl, EventJoin, ctrl.Join, socket.WithAck(), socket.WithDescription("join a watch party"))
	socket.Handle0(reg, ctrl, EventSync, ctrl.Sync,
		socket.WithMiddleware(ctrl.hostOnly),
		socket.WithDescription("host playback sync"),
	)
	socket.Handle0(reg, ctrl, EventLeave, ctrl.Leave, socket.WithDescription("leave a watch party"))
	return ctrl
}

// ============ 事件 ============

// Create 创建房间，当前用户为主持人
func (c *Controller) Create(ctx context.Context, conn *socket.Conn, req *CreateRequest) (*CreateResponse, error) {
	p := &WatchParty{
		ID:      uuid.NewString(),
		HostID:  conn.UserID(),
		Title:   req.Title,
		MediaID: req.MediaID,
	}
	if err := c.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create party: %w", err)
	}
	c.Logger().InfoContext(ctx, "watch party created", zap.String("party_id", p.ID), zap.String("media_id", p.MediaID))
	return &CreateResponse{Success: true, PartyID: p.ID}, nil
}

// Join 加入房间，返回房间信息、播放状态和成员
func (c *Controller) Join(ctx context.Context, conn *socket.Conn, req *PartyRequest) (*JoinResponse, error) {
	party, err := c.party(ctx, req.PartyID)
	if err != nil {
		return nil, err
	}
	if err := conn.Join(RoomName(party.ID)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, ok := c.conns[conn.ID()][party.ID]; !ok {
		c.members[party.ID] = append(c.members[party.ID], member{connID: conn.ID(), userID: conn.UserID()})
		if c.conns[conn.ID()] == nil {
			c.conns[conn.ID()] = make(map[string]struct{})
		}
		c.conns[conn.ID()][party.ID] = struct{}{}
	}
	members := c.membersLocked(party.ID)
	c.mu.Unlock()

	c.BroadcastExcept(RoomName(party.ID), conn.ID(), EventMemberJoined, MemberEvent{
		PartyID:   party.ID,
		UserID:    conn.UserID(),
		Timestamp: c.now(),
	})

	return &JoinResponse{
		Success: true,
		Party:   party,
		State:   c.State(ctx, party.ID),
		Members: members,
	}, nil
}

// Sync 主持人更新播放状态并通知其他成员
func (c *Controller) Sync(ctx context.Context, conn *socket.Conn, req *SyncRequest) error {
	state := Playback{
		Position:  req.Position,
		Playing:   req.Playing,
		UpdatedBy: conn.UserID(),
		UpdatedAt: c.now(),
	}
	if err := c.cache.Set(ctx, stateKey(req.PartyID), state, c.cfg.StateTTL); err != nil {
		return fmt.Errorf("store playback: %w", err)
	}
	if err := c.store.Touch(ctx, req.PartyID, state.UpdatedAt); err != nil {
		c.Logger().WarnContext(ctx, "touch party failed", zap.String("party_id", req.PartyID), zap.Error(err))
	}

	c.BroadcastExcept(RoomName(req.PartyID), conn.ID(), EventState, StateEvent{PartyID: req.PartyID, Playback: state})
	return nil
}

// Leave 离开房间
func (c *Controller) Leave(_ context.Context, conn *socket.Conn, req *PartyRequest) error {
	c.mu.Lock()
	m, ok := c.removeLocked(conn.ID(), req.PartyID)
	c.mu.Unlock()

	conn.Leave(RoomName(req.PartyID))
	if ok {
		c.emitLeft(req.PartyID, m.userID)
	}
	return nil
}

// OnDisconnect 先清理成员表，再对每个房间通知一次离开
func (c *Controller) OnDisconnect(_ context.Context, conn *socket.Conn, _ string) {
	c.mu.Lock()
	left := make(map[string]string)
	for partyID := range c.conns[conn.ID()] {
		if m, ok := c.removeLocked(conn.ID(), partyID); ok {
			left[partyID] = m.userID
		}
	}
	c.mu.Unlock()

	for partyID, userID := range left {
		c.emitLeft(partyID, userID)
	}
}

// ============ 查询 ============

// State 当前播放状态，缓存缺失时为初始状态
func (c *Controller) State(ctx context.Context, partyID string) Playback {
	var state Playback
	if err := c.cache.Get(ctx, stateKey(partyID), &state); err != nil {
		if !errors.Is(err, cache.ErrCacheNotFound) {
			c.Logger().WarnContext(ctx, "load playback failed", zap.String("party_id", partyID), zap.Error(err))
		}
		return Playback{}
	}
	return state
}

// Members 房间内用户（按加入顺序去重）
func (c *Controller) Members(partyID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membersLocked(partyID)
}

// ============ 清理 ============

// ExpireIdle 删除长时间无活动且无在线成员的房间，返回删除数量
func (c *Controller) ExpireIdle(ctx context.Context) (int, error) {
	ids, err := c.store.Stale(ctx, c.now().Add(-c.cfg.IdleTTL))
	if err != nil {
		return 0, fmt.Errorf("list idle parties: %w", err)
	}

	c.mu.Lock()
	idle := ids[:0]
	for _, id := range ids {
		if len(c.members[id]) == 0 {
			idle = append(idle, id)
		}
	}
	c.mu.Unlock()

	n, err := c.store.Delete(ctx, idle...)
	if err != nil {
		return 0, fmt.Errorf("delete idle parties: %w", err)
	}
	for _, id := range idle {
		if err := c.cache.Delete(ctx, stateKey(id)); err != nil {
			c.Logger().WarnContext(ctx, "delete playback failed", zap.String("party_id", id), zap.Error(err))
		}
		_ = c.parties.Forget(ctx, partyKey(id))
	}
	if n > 0 {
		c.Logger().InfoContext(ctx, "idle watch parties expired", zap.Int64("count", n))
	}
	return int(n), nil
}

// ============ 内部 ============

// hostOnly 只允许主持人同步播放状态
func (c *Controller) hostOnly(ctx context.Context, conn *socket.Conn, payload any) (bool, error) {
	req, ok := payload.(*SyncRequest)
	if !ok {
		return false, nil
	}
	party, err := c.party(ctx, req.PartyID)
	if err != nil {
		return false, &socket.MiddlewareError{Event: EventSync, Message: err.Error(), Err: err}
	}
	if party.HostID != conn.UserID() {
		return false, &socket.MiddlewareError{Event: EventSync, Message: MsgHostOnly}
	}
	return true, nil
}

func (c *Controller) party(ctx context.Context, id string) (WatchParty, error) {
	p, err := c.parties.Get(ctx, partyKey(id), func(ctx context.Context) (WatchParty, error) {
		return c.store.Get(ctx, id)
	})
	if errors.Is(err, ErrPartyNotFound) {
		return p, socket.NewHandlerError("", ErrPartyNotFound.Error())
	}
	return p, err
}

func (c *Controller) emitLeft(partyID, userID string) {
	c.EmitToRoom(RoomName(partyID), EventMemberLeft, MemberEvent{
		PartyID:   partyID,
		UserID:    userID,
		Timestamp: c.now(),
	})
}

func (c *Controller) membersLocked(partyID string) []string {
	list := c.members[partyID]
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, m := range list {
		if _, ok := seen[m.userID]; ok {
			continue
		}
		seen[m.userID] = struct{}{}
		out = append(out, m.userID)
	}
	return out
}

func (c *Controller) removeLocked(connID, partyID string) (member, bool) {
	if _, ok := c.conns[connID][partyID]; !ok {
		return member{}, false
	}
	delete(c.conns[connID], partyID)
	if len(c.conns[connID]) == 0 {
		delete(c.conns, connID)
	}

	var removed member
	list := c.members[partyID]
	for i, m := range list {
		if m.connID == connID {
			removed = m
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.members, partyID)
	} else {
		c.members[partyID] = list
	}
	return removed, true
}

func partyKey(id string) string { return "party:" + id }
func stateKey(id string) string { return "party:state:" + id }

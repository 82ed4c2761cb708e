package socket

import (
	"sort"
	"sync"
	"time"
)

// room 房间
type room struct {
	id         string
	members    map[string]*Conn
	createdAt  time.Time
	emptySince time.Time
}

// roomTable 命名空间内的房间表
//
// 成员为空的房间不会立即删除，由 sweep 统一回收。
type roomTable struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	maxSize int
}

func newRoomTable(maxSize int) *roomTable {
	return &roomTable{
		rooms:   make(map[string]*room),
		maxSize: maxSize,
	}
}

// join 加入房间，已在房间中视为成功
func (t *roomTable) join(c *Conn, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[id]
	if !ok {
		r = &room{id: id, members: make(map[string]*Conn), createdAt: time.Now()}
		t.rooms[id] = r
	}
	if _, in := r.members[c.id]; in {
		return false, nil
	}
	if t.maxSize > 0 && len(r.members) >= t.maxSize {
		return false, ErrRoomFull
	}
	r.members[c.id] = c
	r.emptySince = time.Time{}
	c.rooms.Store(id, struct{}{})
	return true, nil
}

// leave 离开房间，返回是否确实离开
func (t *roomTable) leave(c *Conn, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(c, id)
}

func (t *roomTable) leaveLocked(c *Conn, id string) bool {
	c.rooms.Delete(id)
	r, ok := t.rooms[id]
	if !ok {
		return false
	}
	if _, in := r.members[c.id]; !in {
		return false
	}
	delete(r.members, c.id)
	if len(r.members) == 0 {
		r.emptySince = time.Now()
	}
	return true
}

// leaveAll 离开所有房间，返回离开的房间列表
func (t *roomTable) leaveAll(c *Conn) []string {
	rooms := c.Rooms()
	t.mu.Lock()
	defer t.mu.Unlock()
	left := make([]string, 0, len(rooms))
	for _, id := range rooms {
		if t.leaveLocked(c, id) {
			left = append(left, id)
		}
	}
	return left
}

// members 房间成员快照
func (t *roomTable) members(id string) []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rooms[id]
	if !ok {
		return nil
	}
	out := make([]*Conn, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

// memberIDs 房间成员 ID（有序）
func (t *roomTable) memberIDs(id string) []string {
	conns := t.members(id)
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.id)
	}
	sort.Strings(ids)
	return ids
}

// names 非空房间名（有序）
func (t *roomTable) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.rooms))
	for id, r := range t.rooms {
		if len(r.members) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (t *roomTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// sweep 删除空置超过 idle 的房间，返回删除数量
func (t *roomTable) sweep(idle time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, r := range t.rooms {
		if len(r.members) == 0 && !r.emptySince.IsZero() && now.Sub(r.emptySince) >= idle {
			delete(t.rooms, id)
			n++
		}
	}
	return n
}

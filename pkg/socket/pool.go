package socket

import (
	"sync"
	"sync/atomic"
)

// connPool 连接池
type connPool struct {
	conns    sync.Map // connID -> *Conn
	count    atomic.Int64
	maxConns int // 0 不限制
}

func newConnPool(maxConns int) *connPool {
	return &connPool{maxConns: maxConns}
}

// add 添加连接，超出上限返回 ErrTooManyConnections
func (p *connPool) add(c *Conn) error {
	if _, loaded := p.conns.LoadOrStore(c.id, c); loaded {
		return nil
	}
	n := p.count.Add(1)
	if p.maxConns > 0 && int(n) > p.maxConns {
		p.count.Add(-1)
		p.conns.Delete(c.id)
		return ErrTooManyConnections
	}
	return nil
}

func (p *connPool) remove(id string) {
	if _, loaded := p.conns.LoadAndDelete(id); loaded {
		p.count.Add(-1)
	}
}

func (p *connPool) get(id string) (*Conn, bool) {
	v, ok := p.conns.Load(id)
	if !ok {
		return nil, false
	}
	c, ok := v.(*Conn)
	return c, ok
}

func (p *connPool) len() int {
	return int(p.count.Load())
}

// full 是否已达上限（升级前的快速检查）
func (p *connPool) full() bool {
	return p.maxConns > 0 && p.len() >= p.maxConns
}

func (p *connPool) each(f func(*Conn) bool) {
	p.conns.Range(func(_, v any) bool {
		c, ok := v.(*Conn)
		if !ok {
			return true
		}
		return f(c)
	})
}

func (p *connPool) snapshot() []*Conn {
	out := make([]*Conn, 0, p.len())
	p.each(func(c *Conn) bool {
		out = append(out, c)
		return true
	})
	return out
}

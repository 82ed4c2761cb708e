// Package broker 将活动记录发布到消息中间件（Kafka / RabbitMQ）
package broker

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed 发布器已关闭
	ErrClosed = errors.New("broker: publisher closed")
	// ErrEmptyTopic 未指定主题
	ErrEmptyTopic = errors.New("broker: empty topic")
)

// Message 待发布的消息
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher 消息发布器
type Publisher interface {
	// Publish 同步发布一条消息
	Publish(ctx context.Context, msg Message) error
	// Close 释放连接
	Close() error
}

// ============ Noop ============

type noopPublisher struct{}

// NewNoop 返回丢弃所有消息的发布器
func NewNoop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, Message) error { return nil }
func (noopPublisher) Close() error                           { return nil }

// ============ Memory ============

// MemoryPublisher 将消息保存在内存中，用于本地开发和测试
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemory 创建内存发布器
func NewMemory() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 记录消息
func (p *MemoryPublisher) Publish(_ context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrEmptyTopic
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.messages = append(p.messages, msg)
	return nil
}

// Messages 返回已发布消息的副本
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close 关闭发布器
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

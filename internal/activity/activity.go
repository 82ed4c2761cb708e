// Package activity 将连接生命周期事件转发到消息中间件
package activity

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/broker"
	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/socket"
)

// Record 发布到中间件的活动记录
type Record struct {
	Type      string    `json:"type"`
	Namespace string    `json:"namespace"`
	ConnID    string    `json:"connId"`
	UserID    string    `json:"userId,omitempty"`
	Room      string    `json:"room,omitempty"`
	Event     string    `json:"event,omitempty"`
	Code      string    `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Forwarder 生命周期事件转发器
type Forwarder struct {
	publisher broker.Publisher
	topic     string
	timeout   time.Duration
	log       logger.Logger
}

// Option 转发器选项
type Option func(*Forwarder)

// WithTimeout 单条发布超时
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) { f.timeout = d }
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(f *Forwarder) { f.log = l }
}

// NewForwarder 创建转发器
func NewForwarder(p broker.Publisher, topic string, opts ...Option) *Forwarder {
	f := &Forwarder{
		publisher: p,
		topic:     topic,
		timeout:   3 * time.Second,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach 订阅服务的全部生命周期事件
func (f *Forwarder) Attach(s *socket.Server) {
	for _, t := range []socket.LifecycleType{
		socket.LifecycleConnected,
		socket.LifecycleDisconnected,
		socket.LifecycleRoomJoined,
		socket.LifecycleRoomLeft,
		socket.LifecycleEventFailed,
	} {
		s.Subscribe(t, f.Handle)
	}
}

// Handle 发布一条生命周期事件，失败只记录日志
func (f *Forwarder) Handle(ev socket.Lifecycle) {
	rec := Record{
		Type:      string(ev.Type),
		Namespace: ev.Namespace,
		ConnID:    ev.ConnID,
		UserID:    ev.UserID,
		Room:      ev.Room,
		Event:     ev.Event,
		Code:      ev.Code,
		Reason:    ev.Reason,
		Timestamp: ev.Time.UTC(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		f.log.Error("activity encode failed", zap.Error(err))
		return
	}

	key := ev.UserID
	if key == "" {
		key = ev.ConnID
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	err = f.publisher.Publish(ctx, broker.Message{
		Topic:   f.topic,
		Key:     key,
		Value:   body,
		Headers: map[string]string{"type": rec.Type, "namespace": rec.Namespace},
	})
	if err != nil {
		f.log.Warn("activity publish failed",
			zap.String("type", rec.Type),
			zap.String("namespace", rec.Namespace),
			zap.Error(err),
		)
	}
}

package socket

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接
	ConnectionOpened(namespace string)
	ConnectionClosed(namespace string)
	ConnectionRejected(namespace, reason string)

	// 事件
	EventDispatched(namespace, event string, duration time.Duration)
	EventFailed(namespace, event, code string)

	// 帧
	FrameDropped(namespace string)
	InvalidFrame(namespace string)

	// 房间
	RoomCount(namespace string, count int)
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (NoopMetrics) ConnectionOpened(string)                         {}
func (NoopMetrics) ConnectionClosed(string)                         {}
func (NoopMetrics) ConnectionRejected(string, string)               {}
func (NoopMetrics) EventDispatched(string, string, time.Duration)   {}
func (NoopMetrics) EventFailed(string, string, string)              {}
func (NoopMetrics) FrameDropped(string)                             {}
func (NoopMetrics) InvalidFrame(string)                             {}
func (NoopMetrics) RoomCount(string, int)                           {}

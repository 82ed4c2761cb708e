package socket

import (
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleType 生命周期事件类型
type LifecycleType string

const (
	// LifecycleConnected 连接建立（认证与事件绑定完成后）
	LifecycleConnected LifecycleType = "connection.opened"
	// LifecycleDisconnected 连接断开
	LifecycleDisconnected LifecycleType = "connection.closed"
	// LifecycleRoomJoined 加入房间
	LifecycleRoomJoined LifecycleType = "room.joined"
	// LifecycleRoomLeft 离开房间
	LifecycleRoomLeft LifecycleType = "room.left"
	// LifecycleEventFailed 事件处理失败
	LifecycleEventFailed LifecycleType = "event.failed"
)

// Lifecycle 生命周期事件
type Lifecycle struct {
	Type      LifecycleType
	Namespace string
	ConnID    string
	UserID    string
	Room      string
	Event     string
	Code      string
	Reason    string
	Time      time.Time
}

// LifecycleHandler 生命周期订阅者
type LifecycleHandler func(Lifecycle)

// EventBus 生命周期事件总线，异步投递给订阅者
type EventBus struct {
	handlers      map[LifecycleType][]LifecycleHandler
	mu            sync.RWMutex
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        atomic.Bool
	closeOnce     sync.Once
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus(workers, queueSize int) *EventBus {
	eb := &EventBus{
		handlers: make(map[LifecycleType][]LifecycleHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			task()
		case <-eb.stopCh:
			// 退出前清空队列中已接收的任务
			for {
				select {
				case task := <-eb.workerCh:
					task()
				default:
					return
				}
			}
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(t LifecycleType, h LifecycleHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[t] = append(eb.handlers[t], h)
}

// Publish 发布事件（异步）
func (eb *EventBus) Publish(ev Lifecycle) {
	if eb.closed.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	eb.mu.RLock()
	handlers := eb.handlers[ev.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h := h
		task := func() { h(ev) }
		// 连接建立/断开短暂阻塞等待队列，其他事件队列满即丢弃
		if ev.Type == LifecycleConnected || ev.Type == LifecycleDisconnected {
			select {
			case eb.workerCh <- task:
			case <-time.After(100 * time.Millisecond):
				eb.droppedEvents.Add(1)
			}
			continue
		}
		select {
		case eb.workerCh <- task:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close 关闭事件总线，等待 worker 退出
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.closed.Store(true)
		close(eb.stopCh)
		eb.wg.Wait()
	})
}

// Dropped 丢弃的事件数量
func (eb *EventBus) Dropped() int64 {
	return eb.droppedEvents.Load()
}

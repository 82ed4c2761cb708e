package job

import (
	"context"
	"time"
)

// MaxJobNameLength 任务名最大长度
const MaxJobNameLength = 128

// Handler 任务处理器
type Handler interface {
	Execute(ctx context.Context) error
}

// HandlerFunc 函数式处理器
type HandlerFunc func(ctx context.Context) error

// Execute 实现 Handler 接口
func (f HandlerFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Job 周期任务定义
type Job struct {
	Name    string        // 唯一名称
	Spec    string        // Cron 表达式，支持可选秒字段与 @every 描述符
	Handler Handler       // 处理器
	Timeout time.Duration // 单次执行超时，0 使用调度器默认值
}

// Stats 任务执行统计
type Stats struct {
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastRunAt    time.Time     `json:"last_run_at,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRunAt    time.Time     `json:"next_run_at,omitempty"`
}

// Observer 每次执行结束回调，用于上报指标
type Observer func(name string, elapsed time.Duration, err error)

package job

import "errors"

// 错误定义
var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("job: job not found")

	// ErrJobAlreadyExists 任务已存在
	ErrJobAlreadyExists = errors.New("job: job already exists")

	// ErrJobRunning 任务正在执行
	ErrJobRunning = errors.New("job: job is running")

	// ErrInvalidCronExpression 无效的 Cron 表达式
	ErrInvalidCronExpression = errors.New("job: invalid cron expression")

	// ErrInvalidJobName 无效的任务名称
	ErrInvalidJobName = errors.New("job: invalid job name")

	// ErrSchedulerStopped 调度器已停止
	ErrSchedulerStopped = errors.New("job: scheduler stopped")
)

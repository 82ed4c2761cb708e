package job

import (
	"time"

	"github.com/tokmz/marquee/pkg/logger"
)

// Config 调度器配置
type Config struct {
	Logger     logger.Logger  // 日志器
	Location   *time.Location // 时区，默认 time.Local
	JobTimeout time.Duration  // 默认执行超时
	Observer   Observer       // 执行结果观察者
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Location:   time.Local,
		JobTimeout: time.Minute,
	}
}

// Option 配置选项
type Option func(*Config)

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithLocation 设置时区
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		c.Location = loc
	}
}

// WithJobTimeout 设置默认执行超时
func WithJobTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.JobTimeout = d
	}
}

// WithObserver 设置执行结果观察者
func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observer = o
	}
}

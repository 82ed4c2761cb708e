package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tokmz/marquee"
	"github.com/tokmz/marquee/pkg/errors"
	"github.com/tokmz/marquee/pkg/logger"
)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每个 key 每秒允许的请求数（默认 5）
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// Burst 突发容量（默认 10）
	Burst int `mapstructure:"burst"`

	// KeyFunc 限流 key（默认客户端 IP）
	KeyFunc func(c *marquee.Context) string `mapstructure:"-"`

	// Idle 超过该时长未访问的 key 会被回收（默认 10 分钟）
	Idle time.Duration `mapstructure:"idle"`

	Logger logger.Logger `mapstructure:"-"`
}

// DefaultRateLimiterConfig 返回默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		Idle:              10 * time.Minute,
	}
}

// visitor 单个 key 的令牌桶
type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimiter 按 key 限流的中间件
type RateLimiter struct {
	cfg      *RateLimiterConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
	lastGC   time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfgs ...*RateLimiterConfig) *RateLimiter {
	cfg := DefaultRateLimiterConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RequestsPerSecond))
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *marquee.Context) string { return c.ClientIP() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow 消耗 key 的一个令牌
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	// 惰性回收空闲 key
	if now.Sub(l.lastGC) >= l.cfg.Idle {
		for k, v := range l.visitors {
			if now.Sub(v.seen) >= l.cfg.Idle {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.seen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Len 当前跟踪的 key 数量
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Handler 返回中间件函数
func (l *RateLimiter) Handler() marquee.HandlerFunc {
	return func(c *marquee.Context) {
		key := l.cfg.KeyFunc(c)
		if l.Allow(key) {
			c.Next()
			return
		}

		l.cfg.Logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("path", c.Request().URL.Path),
		)
		c.Header("Retry-After", "1")
		c.RespondError(errors.ErrTooManyRequests)
		c.Abort()
	}
}

// RateLimit 使用给定配置创建限流中间件
func RateLimit(cfgs ...*RateLimiterConfig) marquee.HandlerFunc {
	return NewRateLimiter(cfgs...).Handler()
}

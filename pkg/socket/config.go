package socket

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tokmz/marquee/pkg/logger"
)

// Config Socket 服务配置
type Config struct {
	// 挂载路径，命名空间路径拼接在其后（如 /socket/chat）
	Path string

	// 连接配置
	MaxConnections   int           // 最大连接数（所有命名空间合计）
	ReadBufferSize   int           // 读缓冲区大小
	WriteBufferSize  int           // 写缓冲区大小
	HandshakeTimeout time.Duration // 握手超时
	MaxMessageSize   int64         // 单帧最大字节数

	// 心跳配置
	PingInterval time.Duration // ping 间隔
	PongTimeout  time.Duration // pong 超时
	WriteWait    time.Duration // 单次写超时

	// 队列配置
	SendQueueSize    int   // 每连接发送队列
	MaxInvalidFrames int32 // 连续非法帧上限，超过即断开

	// 房间配置
	MaxRoomSize int // 单房间最大连接数，0 不限制

	// 事件总线
	EventWorkers   int
	EventQueueSize int

	// 生产模式下错误信封不携带堆栈
	Production bool

	// Origin 配置
	AllowedOrigins    []string
	CheckOrigin       func(*http.Request) bool
	EnableCompression bool

	Metrics Metrics
	Logger  logger.Logger
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Path:             "/socket",
		MaxConnections:   10000,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
		PingInterval:     25 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteWait:        10 * time.Second,
		SendQueueSize:    256,
		MaxInvalidFrames: 10,
		MaxRoomSize:      0,
		EventWorkers:     4,
		EventQueueSize:   1024,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: Path must start with '/', got %q", ErrInvalidConfig, c.Path)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: MaxConnections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: PingInterval must be positive, got %v", ErrInvalidConfig, c.PingInterval)
	}
	if c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("%w: PongTimeout (%v) must be greater than PingInterval (%v)",
			ErrInvalidConfig, c.PongTimeout, c.PingInterval)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: SendQueueSize must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.MaxRoomSize < 0 {
		return fmt.Errorf("%w: MaxRoomSize must not be negative, got %d", ErrInvalidConfig, c.MaxRoomSize)
	}
	if c.EventWorkers <= 0 || c.EventQueueSize <= 0 {
		return fmt.Errorf("%w: event bus workers and queue size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithPath 设置挂载路径
func WithPath(path string) Option {
	return func(c *Config) {
		c.Path = "/" + strings.Trim(path, "/")
	}
}

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeat 设置心跳间隔与超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = interval
		c.PongTimeout = timeout
	}
}

// WithMessageSizeLimit 设置单帧大小上限
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendQueueSize 设置每连接发送队列
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithMaxRoomSize 设置单房间容量
func WithMaxRoomSize(size int) Option {
	return func(c *Config) {
		c.MaxRoomSize = size
	}
}

// WithEventBus 设置生命周期事件总线的协程数与队列长度
func WithEventBus(workers, queueSize int) Option {
	return func(c *Config) {
		c.EventWorkers = workers
		c.EventQueueSize = queueSize
	}
}

// WithProduction 生产模式
func WithProduction(production bool) Option {
	return func(c *Config) {
		c.Production = production
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.AllowedOrigins = allowedOrigins
		c.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// WithEnableCompression 启用 permessage-deflate
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.EnableCompression = enable
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// defaultCheckOrigin 同源检查；无 Origin 的非浏览器客户端放行
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		whitelist[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		_, ok := whitelist[origin]
		return ok
	}
}

// newUpgrader 根据配置创建 gorilla Upgrader
func newUpgrader(c *Config) *websocket.Upgrader {
	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		if len(c.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(c.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}
	return &websocket.Upgrader{
		HandshakeTimeout:  c.HandshakeTimeout,
		ReadBufferSize:    c.ReadBufferSize,
		WriteBufferSize:   c.WriteBufferSize,
		CheckOrigin:       checkOrigin,
		EnableCompression: c.EnableCompression,
	}
}

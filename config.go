package marquee

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/marquee/pkg/logger"
)

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	// Addr 监听地址，默认 ":8080"
	Addr string `mapstructure:"addr"`

	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`

	// CertFile/KeyFile 同时设置时以 TLS 监听
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 关机总超时（HTTP 与全部关机钩子共享），默认 15 秒
	Timeout time.Duration `mapstructure:"timeout"`

	// BeforeShutdown 关机前回调
	BeforeShutdown func() `mapstructure:"-"`
}

// Config 引擎配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string `mapstructure:"mode"`

	Server   ServerConfig   `mapstructure:"server"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// MaxMultipartMemory 最大 multipart 内存（字节）
	MaxMultipartMemory int64 `mapstructure:"max_multipart_memory"`

	// Banner 启动信息输出，nil 不打印
	Banner io.Writer `mapstructure:"-"`

	Logger logger.Logger `mapstructure:"-"`
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		},
		Shutdown: ShutdownConfig{
			Timeout: 15 * time.Second,
		},
		MaxMultipartMemory: 8 << 20,
		Banner:             os.Stdout,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithServer 整体替换服务器配置，零值字段保留默认
func WithServer(s ServerConfig) Option {
	return func(c *Config) {
		if s.Addr != "" {
			c.Server.Addr = s.Addr
		}
		if s.ReadTimeout > 0 {
			c.Server.ReadTimeout = s.ReadTimeout
		}
		if s.WriteTimeout > 0 {
			c.Server.WriteTimeout = s.WriteTimeout
		}
		if s.IdleTimeout > 0 {
			c.Server.IdleTimeout = s.IdleTimeout
		}
		if s.MaxHeaderBytes > 0 {
			c.Server.MaxHeaderBytes = s.MaxHeaderBytes
		}
		c.Server.CertFile = s.CertFile
		c.Server.KeyFile = s.KeyFile
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 设置关机前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = fn
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithBanner 设置启动信息输出
func WithBanner(w io.Writer) Option {
	return func(c *Config) {
		c.Banner = w
	}
}

// WithLogger 设置日志实例
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

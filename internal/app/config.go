package app

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/marquee"
	"github.com/tokmz/marquee/internal/metrics"
	"github.com/tokmz/marquee/internal/watchparty"
	"github.com/tokmz/marquee/pkg/broker"
	"github.com/tokmz/marquee/pkg/cache"
	"github.com/tokmz/marquee/pkg/config"
	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/orm"
	"github.com/tokmz/marquee/pkg/token"
	"github.com/tokmz/marquee/pkg/tracing"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix 环境变量前缀：MARQUEE_SOCKET_PATH -> socket.path
const EnvPrefix = "MARQUEE"

// Config 应用配置
type Config struct {
	App        AppSection          `mapstructure:"app"`
	Server     marquee.ServerConfig `mapstructure:"server"`
	Shutdown   ShutdownSection     `mapstructure:"shutdown"`
	HTTP       HTTPSection         `mapstructure:"http"`
	Socket     SocketSection       `mapstructure:"socket" validate:"required"`
	Log        LogSection          `mapstructure:"log"`
	Database   orm.Config          `mapstructure:"database"`
	Cache      cache.Config        `mapstructure:"cache"`
	Broker     BrokerSection       `mapstructure:"broker"`
	Tracing    tracing.Config      `mapstructure:"tracing"`
	Auth       AuthSection         `mapstructure:"auth"`
	Jobs       JobsSection         `mapstructure:"jobs"`
	WatchParty watchparty.Config   `mapstructure:"watchparty"`
	Metrics    metrics.Config      `mapstructure:"metrics"`
}

// AppSection 应用标识
type AppSection struct {
	Name       string `mapstructure:"name" validate:"required"`
	Env        string `mapstructure:"env"`
	Production bool   `mapstructure:"production"` // 错误信封不带堆栈，gin release 模式
}

// ShutdownSection 关机配置
type ShutdownSection struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// HTTPSection HTTP 中间件配置
type HTTPSection struct {
	TrustedProxies []string         `mapstructure:"trusted_proxies"`
	CORS           CORSSection      `mapstructure:"cors"`
	RateLimit      RateLimitSection `mapstructure:"rate_limit"`
}

// CORSSection 跨域配置
type CORSSection struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// RateLimitSection 升级路由按 IP 限流
type RateLimitSection struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Idle              time.Duration `mapstructure:"idle"`
}

// SocketSection socket 服务配置
type SocketSection struct {
	Path              string        `mapstructure:"path" validate:"required,startswith=/"`
	MaxConnections    int           `mapstructure:"max_connections" validate:"gt=0"`
	MaxMessageSize    int64         `mapstructure:"max_message_size" validate:"gt=0"`
	PingInterval      time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout" validate:"gtfield=PingInterval"`
	SendQueueSize     int           `mapstructure:"send_queue_size" validate:"gt=0"`
	MaxRoomSize       int           `mapstructure:"max_room_size" validate:"gte=0"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AllowAllOrigins   bool          `mapstructure:"allow_all_origins"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	EventWorkers      int           `mapstructure:"event_workers" validate:"gt=0"`
	EventQueueSize    int           `mapstructure:"event_queue_size" validate:"gt=0"`
}

// LogSection 日志配置
type LogSection struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Caller     bool   `mapstructure:"caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// BrokerSection 活动流配置
type BrokerSection struct {
	broker.Config  `mapstructure:",squash"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// AuthSection 令牌配置
type AuthSection struct {
	token.Config `mapstructure:",squash"`
	// AllowIssue 开放 POST /api/sessions 签发令牌，仅用于本地联调
	AllowIssue bool `mapstructure:"allow_issue"`
}

// JobsSection 后台任务配置，cron 表达式为空表示不注册
type JobsSection struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	RoomSweep   string        `mapstructure:"room_sweep"`
	RoomIdle    time.Duration `mapstructure:"room_idle"`
	PartyExpiry string        `mapstructure:"party_expiry"`
	TokenPrune  string        `mapstructure:"token_prune"`
}

// LoggerConfig 转换为 logger.Config
func (s LogSection) LoggerConfig() (*logger.Config, error) {
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	cfg := &logger.Config{
		Level:            level,
		Format:           logger.Format(s.Format),
		Console:          s.Console,
		EnableCaller:     s.Caller,
		EnableStacktrace: s.Stacktrace,
	}
	if s.File != "" {
		cfg.Rotate = &logger.RotateConfig{
			Filename:   s.File,
			MaxSize:    s.MaxSize,
			MaxAge:     s.MaxAge,
			MaxBackups: s.MaxBackups,
			LocalTime:  true,
		}
	}
	return cfg, nil
}

// Validate 校验跨段约束，各子系统自身的校验在构造时执行
func (c *Config) Validate() error {
	var errs []error
	if err := c.Auth.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Broker.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tracing.Enabled {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.CORS.AllowCredentials {
		for _, o := range c.HTTP.CORS.AllowOrigins {
			if o == "*" {
				errs = append(errs, errors.New("http.cors: allow_credentials cannot be combined with origin '*'"))
				break
			}
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics: path must start with '/', got %q", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// ============ 加载 ============

// Defaults 内置默认配置（嵌入的 defaults.yaml）
func Defaults() (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(defaultsYAML, &m); err != nil {
		return nil, fmt.Errorf("app: parse defaults: %w", err)
	}
	return m, nil
}

// Source 已加载的配置源，文件变更时重新解码并通知订阅者
type Source struct {
	cfg *config.Config

	mu       sync.RWMutex
	onReload []func(*Config)
	onError  []func(error)
}

// Load 加载配置：内置默认值 < 配置文件 < MARQUEE_ 环境变量
// path 为空时在 . 与 ./configs 下查找 config.*，找不到则只用默认值
func Load(path string) (*Config, *Source, error) {
	defaults, err := Defaults()
	if err != nil {
		return nil, nil, err
	}

	src := &Source{}
	opts := []config.Option{
		config.WithDefaults(defaults),
		config.WithEnvPrefix(EnvPrefix),
		config.WithOnChange(src.reload),
		config.WithOnError(src.fail),
	}
	if path != "" {
		opts = append(opts, config.WithConfigFile(path))
	} else {
		opts = append(opts, config.WithConfigName("config"), config.WithConfigPaths(".", "./configs"))
	}
	src.cfg = config.New(opts...)

	if err := src.cfg.Load(); err != nil {
		if path != "" || !errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil, err
		}
	}

	cfg, err := decode(src.cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, src, nil
}

// decode 解码并校验
func decode(c *config.Config) (*Config, error) {
	var cfg Config
	if err := c.Bind(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

// Watch 开始监听配置文件，未使用配置文件时不做任何事
func (s *Source) Watch() error {
	if s.cfg.File() == "" {
		return nil
	}
	return s.cfg.StartWatch()
}

// File 当前使用的配置文件
func (s *Source) File() string {
	return s.cfg.File()
}

// Settings 生效配置（默认值、文件、环境变量合并后）
func (s *Source) Settings() map[string]any {
	return s.cfg.AllSettings()
}

// OnReload 订阅配置变更，仅在新配置通过校验后调用
func (s *Source) OnReload(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// OnError 订阅配置重载错误
func (s *Source) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// Close 停止监听
func (s *Source) Close() {
	s.cfg.Close()
}

func (s *Source) reload(c *config.Config) {
	cfg, err := decode(c)
	if err != nil {
		s.fail(err)
		return
	}
	s.mu.RLock()
	handlers := append([]func(*Config){}, s.onReload...)
	s.mu.RUnlock()
	for _, fn := range handlers {
		fn(cfg)
	}
}

func (s *Source) fail(err error) {
	s.mu.RLock()
	handlers := append([]func(error){}, s.onError...)
	s.mu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}

package cache

import (
	"fmt"
	"time"
)

// DriverType 缓存后端
type DriverType string

const (
	DriverMemory DriverType = "memory" // go-cache，单实例部署
	DriverRedis  DriverType = "redis"  // 多实例共享观影状态
)

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置
type Config struct {
	Driver     DriverType    `mapstructure:"driver"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"` // Set 的 ttl 为 0 时使用
	Tracing    bool          `mapstructure:"tracing"`
	Redis      *RedisConfig  `mapstructure:"redis"`
	Memory     *MemoryConfig `mapstructure:"memory"`

	Serializer Serializer `mapstructure:"-"`
}

// RedisConfig Redis 连接
// standalone 使用 Addr，cluster 与 sentinel 使用 Addrs
type RedisConfig struct {
	Mode         RedisMode     `mapstructure:"mode"`
	Addr         string        `mapstructure:"addr"`
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MemoryConfig go-cache 参数
type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultConfig 进程内缓存，键前缀 marquee:
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		KeyPrefix:  "marquee:",
		DefaultTTL: 10 * time.Minute,
		Memory:     DefaultMemoryConfig(),
		Serializer: JSONSerializer{},
	}
}

// DefaultMemoryConfig go-cache 默认参数
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{DefaultExpiration: 10 * time.Minute, CleanupInterval: 5 * time.Minute}
}

// withDefaults 返回补齐零值字段后的副本，配置文件只需写地址
func (r RedisConfig) withDefaults() RedisConfig {
	if r.Mode == "" {
		r.Mode = RedisStandalone
	}
	if r.PoolSize == 0 {
		r.PoolSize = 100
	}
	if r.MinIdleConns == 0 {
		r.MinIdleConns = 10
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.DialTimeout == 0 {
		r.DialTimeout = 5 * time.Second
	}
	if r.ReadTimeout == 0 {
		r.ReadTimeout = 3 * time.Second
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = 3 * time.Second
	}
	return r
}

// ============ Options ============

// Option 配置选项
type Option func(*Config)

// WithMemory 使用进程内缓存
func WithMemory(cfg *MemoryConfig) Option {
	return func(c *Config) {
		c.Driver = DriverMemory
		c.Memory = cfg
	}
}

// WithKeyPrefix 键前缀
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) { c.KeyPrefix = prefix }
}

// WithTracing 为每次操作创建 span
func WithTracing(enabled bool) Option {
	return func(c *Config) { c.Tracing = enabled }
}

// ============ 校验 ============

var redisModeChecks = map[RedisMode]func(*RedisConfig) string{
	RedisStandalone: func(r *RedisConfig) string {
		if r.Addr == "" {
			return "redis addr is required for standalone mode"
		}
		return ""
	},
	RedisCluster: func(r *RedisConfig) string {
		if len(r.Addrs) < 3 {
			return "redis cluster requires at least 3 nodes"
		}
		return ""
	},
	RedisSentinel: func(r *RedisConfig) string {
		switch {
		case len(r.Addrs) == 0:
			return "redis sentinel requires at least 1 sentinel node"
		case r.MasterName == "":
			return "redis sentinel requires master name"
		}
		return ""
	},
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Serializer == nil {
		return fmt.Errorf("%w: serializer is required", ErrCacheInvalidConfig)
	}
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverRedis:
	default:
		return fmt.Errorf("%w: invalid driver type %q", ErrCacheInvalidConfig, c.Driver)
	}

	if c.Redis == nil {
		return fmt.Errorf("%w: redis config is required", ErrCacheInvalidConfig)
	}
	mode := c.Redis.Mode
	if mode == "" {
		mode = RedisStandalone
	}
	check, ok := redisModeChecks[mode]
	if !ok {
		return fmt.Errorf("%w: invalid redis mode %q", ErrCacheInvalidConfig, mode)
	}
	if msg := check(c.Redis); msg != "" {
		return fmt.Errorf("%w: %s", ErrCacheInvalidConfig, msg)
	}
	return nil
}

// Package config 基于 viper 的配置加载：默认值 < 配置文件 < 环境变量，支持文件热更新
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Config 配置管理器
type Config struct {
	mu   sync.RWMutex
	v    *viper.Viper
	opts options

	watching bool
	pending  *time.Timer
}

// New 创建配置管理器，需调用 Load 读取
func New(opts ...Option) *Config {
	o := options{debounce: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return &Config{v: viper.New(), opts: o}
}

// Load 应用默认值与环境变量并读取配置文件
// 未找到文件时返回 ErrConfigNotFound，此时默认值与环境变量仍然可用
func (c *Config) Load() error {
	c.mu.Lock()
	for k, val := range c.opts.defaults {
		c.v.SetDefault(k, val)
	}
	if c.opts.envPrefix != "" {
		replacer := c.opts.envReplacer
		if replacer == nil {
			replacer = strings.NewReplacer(".", "_")
		}
		c.v.SetEnvPrefix(c.opts.envPrefix)
		c.v.SetEnvKeyReplacer(replacer)
		c.v.AutomaticEnv()
	}

	switch {
	case c.opts.file != "":
		c.v.SetConfigFile(c.opts.file)
	case c.opts.name != "":
		c.v.SetConfigName(c.opts.name)
		for _, p := range c.opts.paths {
			c.v.AddConfigPath(p)
		}
	default:
		c.mu.Unlock()
		return ErrConfigNotFound.WithMessage("no config file or name given")
	}
	if c.opts.typ != "" {
		c.v.SetConfigType(c.opts.typ)
	}

	err := c.v.ReadInConfig()
	c.mu.Unlock()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %w", ErrConfigNotFound, err)
		}
		return fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
	}

	if c.opts.autoWatch {
		return c.StartWatch()
	}
	return nil
}

// File 实际使用的配置文件，未读取到文件时为空
func (c *Config) File() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.ConfigFileUsed()
}

// ============ 读取 ============

// Get 按类型读取，类型不匹配或不存在时返回零值
func Get[T any](c *Config, key string) T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, _ := c.v.Get(key).(T)
	return v
}

// GetString 读取字符串
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

// GetInt 读取整数
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetInt(key)
}

// GetBool 读取布尔
func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetBool(key)
}

// GetDuration 读取时长，支持 "5s" 形式
func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetDuration(key)
}

// GetStringSlice 读取字符串列表
func (c *Config) GetStringSlice(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetStringSlice(key)
}

// IsSet 键是否有值（含默认值）
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.IsSet(key)
}

// Set 覆盖某个键，优先级最高
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)
}

// AllSettings 合并后的全部配置
func (c *Config) AllSettings() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.AllSettings()
}

// ============ 解码 ============

// Unmarshal 按 mapstructure tag 解码
func (c *Config) Unmarshal(out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.Unmarshal(out)
}

// UnmarshalKey 解码某个子树
func (c *Config) UnmarshalKey(key string, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.UnmarshalKey(key, out)
}

// Bind 解码并按 validate tag 校验，失败时返回 ErrConfigInvalid
func (c *Config) Bind(out any) error {
	if err := c.Unmarshal(out); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if err := getValidator().Struct(out); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return nil
}

// Viper 底层实例，直接操作不受锁保护
func (c *Config) Viper() *viper.Viper {
	return c.v
}

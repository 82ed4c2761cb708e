package config

import (
	"strings"
	"time"
)

type options struct {
	file     string
	name     string
	typ      string
	paths    []string
	defaults map[string]any

	envPrefix   string
	envReplacer *strings.Replacer

	autoWatch bool
	debounce  time.Duration
	onChange  func(*Config)
	onError   func(error)
}

// Option 配置选项
type Option func(*options)

// WithConfigFile 配置文件完整路径，优先于 WithConfigName
func WithConfigFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithConfigName 按文件名（不含扩展名）在搜索路径中查找
func WithConfigName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithConfigType 文件类型（yaml、json、toml），扩展名缺失时需要
func WithConfigType(typ string) Option {
	return func(o *options) { o.typ = typ }
}

// WithConfigPaths 搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(o *options) { o.paths = paths }
}

// WithDefaults 默认值，键可为嵌套 map 或 "a.b" 形式
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) { o.defaults = defaults }
}

// WithEnvPrefix 环境变量前缀，PREFIX_A_B 覆盖 a.b
func WithEnvPrefix(prefix string) Option {
	return func(o *options) { o.envPrefix = prefix }
}

// WithEnvKeyReplacer 自定义键名到环境变量名的替换，默认 "." -> "_"
func WithEnvKeyReplacer(r *strings.Replacer) Option {
	return func(o *options) { o.envReplacer = r }
}

// WithAutoWatch Load 成功后立即监听文件
func WithAutoWatch(watch bool) Option {
	return func(o *options) { o.autoWatch = watch }
}

// WithDebounce 合并该时长内的连续文件事件，默认 100ms
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithOnChange 文件变更并重新读取后回调
func WithOnChange(fn func(*Config)) Option {
	return func(o *options) { o.onChange = fn }
}

// WithOnError 重新读取失败或回调 panic 时回调
func WithOnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}
